package intake

import "context"

// Handler applies type-specific processing to classified content. The set
// of implementations is closed: one per structural type the router knows.
type Handler interface {
	Process(ctx context.Context, content string, cls *Classification) (any, error)
}
