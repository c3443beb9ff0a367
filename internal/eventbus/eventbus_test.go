package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func TestPublishToSubscribers(t *testing.T) {
	b := New()
	Use(b)
	t.Cleanup(func() { Use(nil) })

	var got []int
	unsubA := Subscribe(func(_ context.Context, p ping) { got = append(got, p.n) })
	unsubB := Subscribe(func(_ context.Context, p ping) { got = append(got, p.n*10) })
	Subscribe(func(_ context.Context, _ pong) { t.Fatal("pong handler must not see ping") })

	Publish(context.Background(), ping{n: 1})
	require.Equal(t, []int{1, 10}, got)

	unsubA()
	unsubA()
	Publish(context.Background(), ping{n: 2})
	require.Equal(t, []int{1, 10, 20}, got)

	unsubB()
	Publish(context.Background(), ping{n: 3})
	require.Equal(t, []int{1, 10, 20}, got)
}

func TestNoBus(t *testing.T) {
	Use(nil)
	unsub := Subscribe(func(context.Context, ping) { t.Fatal("unexpected event") })
	Publish(context.Background(), ping{n: 1})
	unsub()
}
