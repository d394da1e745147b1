package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/igreja/tesouraria/internal/metrics"
	client "github.com/igreja/tesouraria/pkg/clients/whatsapp"
)

type fakeClient struct {
	mu   sync.Mutex
	sent []client.TextMessage
	err  error
}

func (f *fakeClient) SendText(_ context.Context, msg client.TextMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return "wamid", f.err
}

func TestPermissionNeedsClientAndRecipient(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, PermissionDenied, NewService(nil, "5511", nil, nil).RequestPermission(ctx))
	assert.Equal(t, PermissionDenied, NewService(&fakeClient{}, "", nil, nil).RequestPermission(ctx))
	assert.Equal(t, PermissionGranted, NewService(&fakeClient{}, "5511", nil, nil).RequestPermission(ctx))
}

func TestSendFormatsMessage(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, "5511999990000", metrics.New(), zaptest.NewLogger(t))

	svc.Send(context.Background(), Notification{Title: "Nova receita", Body: "R$ 150,00 - Dízimo", Tag: "nova-receita"})
	svc.Wait()

	assert.Equal(t, []client.TextMessage{{To: "5511999990000", Body: "*Nova receita*\nR$ 150,00 - Dízimo"}}, fake.sent)
}

func TestSendSwallowsFailures(t *testing.T) {
	fake := &fakeClient{err: errors.New("unreachable")}
	svc := NewService(fake, "5511", nil, zaptest.NewLogger(t))

	svc.Send(context.Background(), Notification{Title: "Aniversário", Tag: "aniversario", RequireInteraction: true})
	svc.Wait()

	assert.Len(t, fake.sent, 1)
}

func TestSendWithoutPermissionIsNoop(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, "", nil, nil)

	svc.Send(context.Background(), Notification{Title: "x"})
	svc.Wait()

	assert.Empty(t, fake.sent)
}

func TestSendOutlivesCallerContext(t *testing.T) {
	fake := &fakeClient{}
	svc := NewService(fake, "5511", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Send(ctx, Notification{Body: "só corpo"})
	cancel()
	svc.Wait()

	assert.Equal(t, "só corpo", fake.sent[0].Body)
}
