package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vestchain/storage"
)

var (
	// ErrTokenNotFound is returned when an operation names an unregistered token.
	ErrTokenNotFound = errors.New("state: token not found")
	// ErrInsufficientBalance is returned when a transfer exceeds the funded balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

// Manager provides typed access to ledger state stored in a key-value
// database. Keys are keccak-hashed, values RLP-encoded.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// TokenMetadata describes a registered payment or reward asset.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, len(tokenPrefix)+len(symbol))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], symbol)
	return buf
}

func balanceKey(addr [20]byte, symbol string) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr[:])
	return buf
}

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return buf
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 so arbitrary-length prefixed
// keys map onto uniform database keys.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// --- Token registry ---

func (m *Manager) loadTokenList() ([]string, error) {
	var list []string
	ok, err := m.KVGet(tokenListKey, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return list, nil
}

// RegisterToken stores the metadata for an asset and records it in the token
// index. Registering an existing symbol is a no-op.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	if symbol == "" {
		return fmt.Errorf("state: token symbol required")
	}
	if m.TokenExists(symbol) {
		return nil
	}
	meta := &TokenMetadata{Symbol: symbol, Name: name, Decimals: decimals}
	if err := m.KVPut(tokenMetadataKey(symbol), meta); err != nil {
		return err
	}
	list, err := m.loadTokenList()
	if err != nil {
		return err
	}
	list = append(list, symbol)
	sort.Strings(list)
	return m.KVPut(tokenListKey, list)
}

// Token returns the metadata of a registered asset.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	ok, err := m.KVGet(tokenMetadataKey(symbol), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	return meta, nil
}

// TokenExists reports whether a symbol has been registered.
func (m *Manager) TokenExists(symbol string) bool {
	ok, err := m.KVGet(tokenMetadataKey(symbol), nil)
	return err == nil && ok
}

// TokenList enumerates the registered symbols.
func (m *Manager) TokenList() ([]string, error) {
	return m.loadTokenList()
}

// Balance returns the funded balance of addr in the given asset.
func (m *Manager) Balance(addr [20]byte, symbol string) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(balanceKey(addr, symbol), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetBalance overwrites the funded balance of addr in the given asset.
func (m *Manager) SetBalance(addr [20]byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	if !m.TokenExists(symbol) {
		return ErrTokenNotFound
	}
	return m.KVPut(balanceKey(addr, symbol), amount)
}

// Mint credits freshly issued value to the address.
func (m *Manager) Mint(addr [20]byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	balance, err := m.Balance(addr, symbol)
	if err != nil {
		return err
	}
	return m.SetBalance(addr, symbol, balance.Add(balance, amount))
}

// Transfer moves value between accounts. It satisfies the payment collaborator
// interface of the accrual engine.
func (m *Manager) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: transfer amount must be positive")
	}
	if !m.TokenExists(symbol) {
		return ErrTokenNotFound
	}
	fromBalance, err := m.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.Balance(to, symbol)
	if err != nil {
		return err
	}
	if err := m.SetBalance(from, symbol, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.SetBalance(to, symbol, toBalance.Add(toBalance, amount))
}

// --- Role registry ---

// SetRole grants the role to the address. Duplicate grants are ignored.
func (m *Manager) SetRole(role string, addr [20]byte) error {
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if bytes.Equal(member, addr[:]) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr[:]...))
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i], members[j]) < 0
	})
	return m.KVPut(roleKey(role), members)
}

// RoleMembers lists the addresses holding the role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	var members [][]byte
	ok, err := m.KVGet(roleKey(role), &members)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return members, nil
}

// HasRole reports whether the address holds the role.
func (m *Manager) HasRole(role string, addr [20]byte) bool {
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr[:]) {
			return true
		}
	}
	return false
}
