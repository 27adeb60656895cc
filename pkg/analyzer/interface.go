package analyzer

import (
	"context"
)

// TitleResolver maps a video identifier to a display title.
//
// Resolve never fails: when no title can be found it returns the identifier
// itself with resolved set to false.
type TitleResolver interface {
	Resolve(ctx context.Context, videoID string) (title string, resolved bool)
}
