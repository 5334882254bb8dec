package invoke

import (
	"context"
	"strings"
)

// Dispatcher routes URL targets (http:// or https://) to an HTTP invoker
// and everything else (function names, ARNs) to a Lambda invoker.
type Dispatcher struct {
	HTTP   Invoker
	Lambda Invoker
}

func (d *Dispatcher) Invoke(ctx context.Context, target string, payload []byte) (*Response, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return d.HTTP.Invoke(ctx, target, payload)
	}
	return d.Lambda.Invoke(ctx, target, payload)
}
