package walking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// Fallback calls Primary under a time budget and answers from Secondary when
// Primary fails for any reason other than ErrNoPath
type Fallback struct {
	Primary   Estimator
	Secondary Estimator
	Timeout   time.Duration
}

// WithFallback wraps primary so operational failures degrade to secondary
func WithFallback(primary, secondary Estimator, timeout time.Duration) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, Timeout: timeout}
}

func (f *Fallback) Walk(ctx context.Context, from, to utils.Coordinate) (Leg, error) {
	callCtx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	leg, err := f.Primary.Walk(callCtx, from, to)
	if err == nil || errors.Is(err, ErrNoPath) {
		return leg, err
	}
	if ctx.Err() != nil {
		return Leg{}, ctx.Err()
	}
	log.Debug().Err(err).Str("from", from.String()).Str("to", to.String()).Msg("Street walk failed, using fallback estimate")
	return f.Secondary.Walk(ctx, from, to)
}
