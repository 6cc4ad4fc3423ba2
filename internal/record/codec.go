// Package record реализует бинарный кодек записи подписки.
//
// Формат хранения фиксированный, little-endian, максимум 157 байт:
//
//	owner      32 байта
//	plan_id     8 байт
//	start_time  8 байт (знаковое)
//	duration    8 байт
//	amount      8 байт
//	active      1 байт
//	history len 4 байта (не более 10)
//	history     8 байт на запись
//
// В этом виде записи хранятся в персистентном леджере.
package record

import (
	"encoding/binary"
	"fmt"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/history"
	"github.com/onchainlab/subscription-ledger/internal/models"
)

const (
	// headerSize — размер фиксированной части записи.
	headerSize = address.Size + 8 + 8 + 8 + 8 + 1 + 4

	// MaxEncodedSize — максимальный размер закодированной записи.
	MaxEncodedSize = headerSize + history.Capacity*8
)

// Marshal кодирует запись в бинарный формат хранения.
func Marshal(rec *models.Record) ([]byte, error) {
	const op = "record.Marshal"
	if len(rec.History) > history.Capacity {
		return nil, fmt.Errorf("%s: history length %d exceeds capacity %d", op, len(rec.History), history.Capacity)
	}

	buf := make([]byte, headerSize+len(rec.History)*8)
	copy(buf[:address.Size], rec.Owner[:])
	off := address.Size
	binary.LittleEndian.PutUint64(buf[off:], rec.PlanID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(rec.StartTime))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], rec.Duration)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], rec.Amount)
	off += 8
	if rec.Active {
		buf[off] = 1
	}
	off++
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.History)))
	off += 4
	for _, t := range rec.History {
		binary.LittleEndian.PutUint64(buf[off:], uint64(t))
		off += 8
	}
	return buf, nil
}

// Unmarshal декодирует запись из бинарного формата хранения.
func Unmarshal(data []byte) (*models.Record, error) {
	const op = "record.Unmarshal"
	if len(data) < headerSize {
		return nil, fmt.Errorf("%s: data too short: %d bytes", op, len(data))
	}

	var rec models.Record
	copy(rec.Owner[:], data[:address.Size])
	off := address.Size
	rec.PlanID = binary.LittleEndian.Uint64(data[off:])
	off += 8
	rec.StartTime = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	rec.Duration = binary.LittleEndian.Uint64(data[off:])
	off += 8
	rec.Amount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	rec.Active = data[off] == 1
	off++
	count := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if count > history.Capacity {
		return nil, fmt.Errorf("%s: history length %d exceeds capacity %d", op, count, history.Capacity)
	}
	if len(data) != off+int(count)*8 {
		return nil, fmt.Errorf("%s: invalid data length %d for history of %d entries", op, len(data), count)
	}
	if count > 0 {
		rec.History = make([]int64, 0, count)
		for i := 0; i < int(count); i++ {
			rec.History = append(rec.History, int64(binary.LittleEndian.Uint64(data[off:])))
			off += 8
		}
	}
	return &rec, nil
}
