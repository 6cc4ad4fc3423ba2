// Package history реализует ограниченный журнал событий записи подписки.
//
// Журнал хранит не более Capacity временных меток создания и продления
// в порядке вставки. При переполнении первой удаляется самая старая запись.
package history

// Capacity — максимальное количество записей журнала.
const Capacity = 10

// Append добавляет временную метку t в конец журнала.
// Если журнал заполнен, самая старая запись (индекс 0) вытесняется.
func Append(entries []int64, t int64) []int64 {
	if len(entries) >= Capacity {
		entries = entries[len(entries)-Capacity+1:]
	}
	out := make([]int64, 0, len(entries)+1)
	out = append(out, entries...)
	return append(out, t)
}
