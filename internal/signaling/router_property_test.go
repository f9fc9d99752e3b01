package signaling

import (
	"fmt"
	"testing"

	"github.com/deskpro/signaling-server/internal/session"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newPropertyRouter() (*Router, *session.Registry) {
	registry := session.NewRegistry(session.Config{})
	lifecycle := NewLifecycle(registry, LifecycleConfig{})
	return NewRouter(registry, lifecycle, RouterConfig{}), registry
}

// populate creates session "s" hosted by "host" with n clients c0..cn-1.
func populate(router *Router, n int) []string {
	router.Connect("host")
	router.Handle("host", EventCreateSession, []byte(`{"sessionId":"s"}`))

	clients := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i)
		router.Connect(id)
		router.Handle(id, EventJoinSession, []byte(`{"sessionId":"s"}`))
		clients = append(clients, id)
	}
	return clients
}

func TestRouterDisconnectProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("host disconnect sends exactly one peer-left per client and closes the session", prop.ForAll(
		func(n int) bool {
			router, registry := newPropertyRouter()
			clients := populate(router, n)

			out := router.Disconnect("host")
			if len(out) != len(clients) || hasSession(registry, "s") {
				return false
			}
			seen := make(map[string]int)
			for _, o := range out {
				payload, ok := o.Payload.(PeerLeftPayload)
				if !ok || o.Event != EventPeerLeft || payload.PeerID != "host" || payload.Reason != reasonHostDisconnected {
					return false
				}
				seen[o.To]++
			}
			for _, c := range clients {
				if seen[c] != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
	))

	properties.Property("client disconnect notifies only the host and removes only that client", prop.ForAll(
		func(n, leaver int) bool {
			router, registry := newPropertyRouter()
			clients := populate(router, n)
			gone := clients[leaver%n]

			out := router.Disconnect(gone)
			if len(out) != 1 || out[0].To != "host" || out[0].Event != EventPeerLeft {
				return false
			}
			sess, ok := registry.Get("s")
			if !ok || len(sess.Clients) != n-1 || sess.HasClient(gone) {
				return false
			}
			// Order of the remaining clients is preserved.
			j := 0
			for _, c := range clients {
				if c == gone {
					continue
				}
				if sess.Clients[j] != c {
					return false
				}
				j++
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 100),
	))

	properties.Property("host negotiation reaches every client and never the host", prop.ForAll(
		func(n int, event string) bool {
			router, _ := newPropertyRouter()
			clients := populate(router, n)

			out := router.Handle("host", event, []byte(`{"sessionId":"s","offer":{},"answer":{},"candidate":{}}`))
			if len(out) != len(clients) {
				return false
			}
			for i, o := range out {
				if o.To != clients[i] || o.Event != event {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.OneConstOf(EventOffer, EventAnswer, EventICECandidate),
	))

	properties.Property("message never echoes to the sender", prop.ForAll(
		func(n, sender int) bool {
			router, _ := newPropertyRouter()
			members := append([]string{"host"}, populate(router, n)...)
			from := members[sender%len(members)]

			out := router.Handle(from, EventMessage, []byte(`{"sessionId":"s","message":"hi"}`))
			if len(out) != len(members)-1 {
				return false
			}
			for _, o := range out {
				if o.To == from {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
