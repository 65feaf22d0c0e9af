package backend

import (
	"context"
	"io"

	"github.com/kgcorpus/tagging-console/pkg/models"
)

// Bound is a Client fixed to one credential. It satisfies the narrow
// interfaces of the editor, listing and ingest packages.
type Bound struct {
	client *Client
	cred   *Credential
}

// As binds the client to cred.
func (c *Client) As(cred *Credential) *Bound {
	return &Bound{client: c, cred: cred}
}

// Credential returns the bound credential.
func (b *Bound) Credential() *Credential { return b.cred }

func (b *Bound) Me(ctx context.Context) (*models.User, error) {
	return b.client.Me(ctx, b.cred)
}

func (b *Bound) GetSentence(ctx context.Context, id int) (*models.Sentence, error) {
	return b.client.GetSentence(ctx, b.cred, id)
}

func (b *Bound) SaveSentence(ctx context.Context, id int, req models.SaveSentenceRequest) (*models.Sentence, error) {
	return b.client.SaveSentence(ctx, b.cred, id, req)
}

func (b *Bound) ListSentences(ctx context.Context, q models.SentenceQuery) (*models.SentencePage, error) {
	return b.client.ListSentences(ctx, b.cred, q)
}

func (b *Bound) RunTagging(ctx context.Context, body io.Reader, contentType string) (*models.TaggingResult, error) {
	return b.client.RunTagging(ctx, b.cred, body, contentType)
}
