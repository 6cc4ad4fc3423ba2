// Package address реализует детерминированную адресацию записей леджера.
//
// Адрес — это 32 байта. Адрес владельца совпадает с его публичным ключом
// ed25519, адрес записи подписки выводится из пары (владелец, план) хэшем
// BLAKE2b-256, поэтому отдельный реестр записей не нужен: одинаковые входные
// данные всегда дают один и тот же адрес.
package address

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size — длина адреса в байтах.
const Size = 32

// recordSeed — префикс, отделяющий адреса записей подписок от других
// пространств адресов леджера.
const recordSeed = "subscription"

// Address — 32-байтовый идентификатор аккаунта или записи.
type Address [Size]byte

// Derive возвращает адрес записи подписки для пары (owner, planID).
// Чистая функция без побочных эффектов.
func Derive(owner Address, planID uint64) Address {
	var plan [8]byte
	binary.LittleEndian.PutUint64(plan[:], planID)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(recordSeed))
	h.Write(owner[:])
	h.Write(plan[:])

	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// FromPublicKey возвращает адрес владельца по его публичному ключу ed25519.
func FromPublicKey(pub ed25519.PublicKey) (Address, error) {
	var addr Address
	if len(pub) != Size {
		return addr, fmt.Errorf("address.FromPublicKey: invalid public key length %d", len(pub))
	}
	copy(addr[:], pub)
	return addr, nil
}

// Parse разбирает адрес из hex-строки длиной 64 символа.
func Parse(s string) (Address, error) {
	const op = "address.Parse"
	var addr Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("%s: %w", op, err)
	}
	if len(raw) != Size {
		return addr, fmt.Errorf("%s: invalid length %d", op, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// String возвращает hex-представление адреса.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero сообщает, является ли адрес нулевым.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText реализует encoding.TextMarshaler (hex-формат).
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
