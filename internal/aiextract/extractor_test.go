package aiextract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/resilience"
	"github.com/ecotek/binderlab/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 80},
	}
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{Retry: resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}}
}

var (
	pdf   = model.SourceFile{Name: "report.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}
	photo = model.SourceFile{Name: "label.jpg", MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}}
	video = model.SourceFile{Name: "pour.mp4", MimeType: "video/mp4", Data: []byte{0x00}}
)

func TestExtractFallback_NoClient(t *testing.T) {
	e := New(nil, Options{})
	res, err := e.ExtractFallback(context.Background(), []model.Field{model.Jnr32}, []model.SourceFile{pdf})
	require.NoError(t, err)
	assert.True(t, res.Record.Empty())
	assert.False(t, e.Enabled())
}

func TestExtractFallback_NoMissingFields(t *testing.T) {
	mc := &mockClient{}
	e := New(mc, Options{Model: "m"})

	res, err := e.ExtractFallback(context.Background(), nil, []model.SourceFile{pdf})
	require.NoError(t, err)
	assert.True(t, res.Record.Empty())
	mc.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestExtractFallback_OnlyNonVisualFiles(t *testing.T) {
	mc := &mockClient{}
	e := New(mc, Options{Model: "m"})

	res, err := e.ExtractFallback(context.Background(), []model.Field{model.Ductility}, []model.SourceFile{video})
	require.NoError(t, err)
	assert.True(t, res.Record.Empty())
	mc.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestExtractFallback_RequestShape(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		if req.Model != "claude-test" || req.MaxTokens != defaultMaxTokens {
			return false
		}
		if len(req.System) != 1 || req.System[0].Text != systemPrompt {
			return false
		}
		msg := req.Messages[0]
		return msg.Role == "user" &&
			len(msg.Attachments) == 2 &&
			msg.Attachments[0].IsPDF() &&
			msg.Attachments[1].IsImage()
	})).Return(reply(`{"ductilityCm": 45}`), nil)

	e := New(mc, Options{Model: "claude-test"})
	res, err := e.ExtractFallback(context.Background(),
		[]model.Field{model.Ductility},
		[]model.SourceFile{pdf, video, photo},
	)
	require.NoError(t, err)

	v, ok := res.Record.Float(model.Ductility)
	require.True(t, ok)
	assert.Equal(t, 45.0, v)
	assert.Equal(t, defaultConfidence, res.Confidence)
	assert.Equal(t, int64(1200), res.Usage.InputTokens)
	mc.AssertExpectations(t)
}

func TestExtractFallback_KeepsOnlyRequestedFields(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(reply("```json\n"+`{
		"jnr_3_2": "0.42",
		"softeningPointC": 99,
		"labName": "  KICT  ",
		"dsrData": {"64": 2.1, "70": 1.3},
		"confidence": 0.7
	}`+"\n```"), nil)

	e := New(mc, Options{Model: "m"})
	res, err := e.ExtractFallback(context.Background(),
		[]model.Field{model.Jnr32, model.LabName, model.DSRData},
		[]model.SourceFile{pdf},
	)
	require.NoError(t, err)

	jnr, _ := res.Record.Float(model.Jnr32)
	assert.Equal(t, 0.42, jnr)
	lab, _ := res.Record.Get(model.LabName).Str()
	assert.Equal(t, "KICT", lab)
	table, ok := res.Record.Get(model.DSRData).Table()
	require.True(t, ok)
	assert.Equal(t, map[int]float64{64: 2.1, 70: 1.3}, table)
	assert.True(t, res.Record.IsNull(model.SofteningPoint), "unrequested fields are dropped")
	assert.Equal(t, 0.7, res.Confidence)
	assert.NotEmpty(t, res.Raw)
}

func TestExtractFallback_MalformedReply(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(reply("I could not read the document."), nil)

	e := New(mc, Options{Model: "m"})
	res, err := e.ExtractFallback(context.Background(), []model.Field{model.PgHigh}, []model.SourceFile{photo})
	require.NoError(t, err)
	assert.True(t, res.Record.Empty())
	assert.Nil(t, res.Raw)
}

func TestExtractFallback_RetriesOverloaded(t *testing.T) {
	overloaded := resilience.NewTransientError(errors.New("overloaded"), 529)

	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, overloaded).Once()
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(reply(`{"pgHigh": 76}`), nil).Once()

	e := New(mc, Options{Model: "m", Policy: fastPolicy()})
	res, err := e.ExtractFallback(context.Background(), []model.Field{model.PgHigh}, []model.SourceFile{pdf})
	require.NoError(t, err)
	v, _ := res.Record.Float(model.PgHigh)
	assert.Equal(t, 76.0, v)
	mc.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestExtractFallback_TransportFailure(t *testing.T) {
	mc := &mockClient{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid x-api-key"))

	e := New(mc, Options{Model: "m", Policy: fastPolicy()})
	res, err := e.ExtractFallback(context.Background(), []model.Field{model.PgHigh}, []model.SourceFile{pdf})
	require.Error(t, err)
	assert.Nil(t, res)

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Contains(t, err.Error(), "invalid x-api-key")
	mc.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt([]model.Field{model.Jnr32, model.TestDate})
	assert.Contains(t, p, "only these fields: jnr_3_2, testDate.")
	assert.Contains(t, p, "null")
	assert.Contains(t, p, "Keys: performanceGrade, ")
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "Here you go: {\"a\":1} thanks", `{"a":1}`},
		{"no object", "nothing", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}
