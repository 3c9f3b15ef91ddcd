package channel

import "context"

// Collect reads r until EndOfStream and returns the Data payloads. An
// Exception message stops the read and its error is returned with the
// payloads read so far.
func Collect[T any](ctx context.Context, r Receiver[T]) ([]T, error) {
	var out []T
	for {
		m, err := r.Recv(ctx)
		if err != nil {
			return out, err
		}
		switch m.Kind {
		case Data:
			out = append(out, m.Payload)
		case Exception:
			return out, m.Err
		case EndOfStream:
			return out, nil
		}
	}
}
