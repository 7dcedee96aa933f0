package presence

import "github.com/secmon-lab/briareus/pkg/domain/model"

func PickPreferred(a, b *model.RawPresence) *model.RawPresence {
	return pickPreferred(a, b)
}
