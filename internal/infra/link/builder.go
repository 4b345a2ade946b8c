// Package link builds the voting/join URLs and versioned code references
// embedded in documents. It renders nothing; the static file layer serves
// the actual images under the returned code URLs.
package link

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
)

// Builder derives public-facing links from a base URL. The token on each
// code reference changes on every regeneration, so clients never see a
// cached image for a revoked code.
type Builder struct {
	baseURL string
	newID   func() string
}

func NewBuilder(baseURL string) *Builder {
	return &Builder{
		baseURL: strings.TrimRight(baseURL, "/"),
		newID:   uuid.NewString,
	}
}

// NewBuilderWithID injects the token source, used by tests for stable output.
func NewBuilderWithID(baseURL string, newID func() string) *Builder {
	b := NewBuilder(baseURL)
	b.newID = newID
	return b
}

func (b *Builder) MakeLink(kind app.LinkKind, id string, step int) string {
	switch kind {
	case app.LinkJury:
		return fmt.Sprintf("%s/debates/%s/jury?step=%d", b.baseURL, id, step)
	case app.LinkPublic:
		return fmt.Sprintf("%s/debates/%s/vote?step=%d", b.baseURL, id, step)
	case app.LinkQuizJoin:
		return fmt.Sprintf("%s/quiz/%s/join", b.baseURL, id)
	case app.LinkRegistration:
		return fmt.Sprintf("%s/debates/%s/register", b.baseURL, id)
	}
	return b.baseURL
}

func (b *Builder) MakeCode(url string) domain.CodeRef {
	token := b.newID()
	return domain.CodeRef{
		URL:     url,
		CodeURL: fmt.Sprintf("%s/static/qr/%s.png?v=%s", b.baseURL, token, token),
		Token:   token,
	}
}
