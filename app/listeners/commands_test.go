package listeners_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-assistant/app/listeners"
	"github.com/km-arc/go-assistant/app/services/github"
	"github.com/km-arc/go-assistant/app/services/messaging"
	"github.com/km-arc/go-assistant/app/services/notes"
	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/events"
)

// ── fakes ────────────────────────────────────────────────────────────────────

// outbox records messages sent through a stub Z-API server.
type outbox struct {
	mu   sync.Mutex
	sent []map[string]string
}

func (o *outbox) last(t *testing.T) map[string]string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func messagingClient(t *testing.T) (*messaging.Client, *outbox) {
	t.Helper()
	box := &outbox{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		box.mu.Lock()
		box.sent = append(box.sent, in)
		box.mu.Unlock()
		_, _ = w.Write([]byte(`{"messageId":"m1"}`))
	}))
	t.Cleanup(srv.Close)
	c, err := messaging.NewClient(config.MessagingConfig{
		BaseURL: srv.URL, InstanceID: "i", InstanceToken: "t", ClientToken: "c", OwnerPhone: "5511",
	}, nil)
	require.NoError(t, err)
	return c, box
}

type memoryTable struct {
	items []map[string]types.AttributeValue
}

func (m *memoryTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.items = append(m.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memoryTable) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{Items: m.items}, nil
}

func (m *memoryTable) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func received(text string) events.Event {
	return events.New(messaging.EventReceived, messaging.Inbound{MessageID: "x", Phone: "5511", Text: text})
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestCommands_NoteSavesAndReplies(t *testing.T) {
	c := container.New(nil)
	client, box := messagingClient(t)
	table := &memoryTable{}
	store, err := notes.NewStore(table, "notes", nil)
	require.NoError(t, err)
	require.NoError(t, c.Register(messaging.Token, container.Value(client)))
	require.NoError(t, c.Register(notes.Token, container.Value(store)))

	cmds := listeners.NewCommands(c, nil)
	require.NoError(t, cmds.Handle(context.Background(), received("/note buy milk")))

	assert.Len(t, table.items, 1)
	msg := box.last(t)
	assert.Equal(t, "5511", msg["phone"])
	assert.Contains(t, msg["message"], "Saved note")

	require.NoError(t, cmds.Handle(context.Background(), received("/notes")))
	assert.Contains(t, box.last(t)["message"], "- buy milk")
}

func TestCommands_DisabledFeatureIsReported(t *testing.T) {
	c := container.New(nil)
	client, box := messagingClient(t)
	require.NoError(t, c.Register(messaging.Token, container.Value(client)))

	err := listeners.NewCommands(c, nil).Handle(context.Background(), received("/repos di"))

	require.NoError(t, err)
	assert.Equal(t, "Sorry, feature disabled: github.", box.last(t)["message"])
}

func TestCommands_ReposSearch(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"full_name":"uber-go/dig","html_url":"https://github.com/uber-go/dig","stargazers_count":10}]}`))
	}))
	defer gh.Close()
	ghClient, err := github.NewClient(config.GitHubConfig{BaseURL: gh.URL, Token: "t"}, nil)
	require.NoError(t, err)

	c := container.New(nil)
	client, box := messagingClient(t)
	require.NoError(t, c.Register(messaging.Token, container.Value(client)))
	require.NoError(t, c.Register(github.Token, container.Value(ghClient)))

	require.NoError(t, listeners.NewCommands(c, nil).Handle(context.Background(), received("/repos di")))
	assert.Contains(t, box.last(t)["message"], "uber-go/dig")
}

func TestCommands_IgnoresPlainText(t *testing.T) {
	c := container.New(nil)
	client, box := messagingClient(t)
	require.NoError(t, c.Register(messaging.Token, container.Value(client)))

	require.NoError(t, listeners.NewCommands(c, nil).Handle(context.Background(), received("hello there")))
	assert.Zero(t, box.count())
}

func TestCommands_WithoutMessagingIgnoresMessages(t *testing.T) {
	c := container.New(nil)
	table := &memoryTable{}
	store, err := notes.NewStore(table, "notes", nil)
	require.NoError(t, err)
	require.NoError(t, c.Register(notes.Token, container.Value(store)))

	cmds := listeners.NewCommands(c, nil)

	assert.NoError(t, cmds.Handle(context.Background(), received("/note buy milk")))
	assert.Empty(t, table.items)
}

func TestCommands_OnlyOwnerIsServed(t *testing.T) {
	c := container.New(nil)
	client, box := messagingClient(t)
	table := &memoryTable{}
	store, err := notes.NewStore(table, "notes", nil)
	require.NoError(t, err)
	require.NoError(t, c.Register(messaging.Token, container.Value(client)))
	require.NoError(t, c.Register(notes.Token, container.Value(store)))
	cmds := listeners.NewCommands(c, nil)

	stranger := events.New(messaging.EventReceived, messaging.Inbound{
		MessageID: "y", Phone: "5599", Text: "/note pwned",
	})
	require.NoError(t, cmds.Handle(context.Background(), stranger))
	voice := events.New(messaging.EventReceived, messaging.Inbound{
		MessageID: "z", Phone: "5599", AudioURL: "http://169.254.169.254/latest",
	})
	require.NoError(t, cmds.Handle(context.Background(), voice))

	assert.Empty(t, table.items)
	assert.Zero(t, box.count())
}

func TestCommands_RejectsForeignPayload(t *testing.T) {
	cmds := listeners.NewCommands(container.New(nil), nil)
	assert.Error(t, cmds.Handle(context.Background(), events.New(messaging.EventReceived, "raw")))
}

func TestCommands_VoiceWithoutTranscription(t *testing.T) {
	c := container.New(nil)
	client, box := messagingClient(t)
	require.NoError(t, c.Register(messaging.Token, container.Value(client)))

	e := events.New(messaging.EventReceived, messaging.Inbound{Phone: "5511", AudioURL: "http://audio/x.ogg"})
	require.NoError(t, listeners.NewCommands(c, nil).Handle(context.Background(), e))
	assert.Equal(t, "Sorry, feature disabled: transcription.", box.last(t)["message"])
}
