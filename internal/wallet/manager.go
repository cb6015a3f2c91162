package wallet

// Manager holds the session's trading wallets in a fixed order. The first
// wallet doubles as the canary used for recovery probes.
type Manager struct {
	wallets []Keypair
	index   map[string]int
}

// NewManager builds a manager over the given wallets. Order is preserved.
func NewManager(wallets []Keypair) *Manager {
	index := make(map[string]int, len(wallets))
	for i, w := range wallets {
		index[w.PublicKey()] = i
	}
	return &Manager{wallets: wallets, index: index}
}

// List returns the wallets in order.
func (m *Manager) List() []Keypair {
	out := make([]Keypair, len(m.wallets))
	copy(out, m.wallets)
	return out
}

// Canary returns the designated probe wallet.
func (m *Manager) Canary() (Keypair, bool) {
	if len(m.wallets) == 0 {
		return Keypair{}, false
	}
	return m.wallets[0], true
}

// Lookup finds a wallet by its public key.
func (m *Manager) Lookup(pubkey string) (Keypair, bool) {
	i, ok := m.index[pubkey]
	if !ok {
		return Keypair{}, false
	}
	return m.wallets[i], true
}

// Count returns the number of wallets.
func (m *Manager) Count() int {
	return len(m.wallets)
}
