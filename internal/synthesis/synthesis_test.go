package synthesis

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"studykb/internal/intent"
	"studykb/internal/llm"
	"studykb/internal/retrieval"
	"studykb/internal/store"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func item(filename, text string, page int) retrieval.Result {
	return retrieval.Result{
		Chunk:    store.Chunk{Text: text, Page: page},
		Filename: filename,
	}
}

func TestSynthesizeCitesRetrievedChunks(t *testing.T) {
	client := &llm.MockClient{}
	var captured string
	client.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.String(2) }).
		Return("Photosynthesis converts light to chemical energy [Reference 1 - Page 2].", nil)

	s := New(client, 12000, testLog())
	ans, err := s.Synthesize(context.Background(), "what is photosynthesis",
		intent.Definition,
		[]retrieval.Result{
			item("bio.pdf", "Photosynthesis converts light energy into chemical energy.", 2),
			item("bio.pdf", "Chlorophyll absorbs red and blue wavelengths most efficiently.", 5),
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !ans.Grounded {
		t.Error("answer with sources should be grounded")
	}
	if len(ans.References) != 2 {
		t.Fatalf("got %d references, want 2", len(ans.References))
	}
	if ans.References[0].Page != 2 || ans.References[1].Page != 5 {
		t.Errorf("references carry wrong pages: %+v", ans.References)
	}
	if !strings.Contains(captured, "[Reference 1 - Page 2]") {
		t.Error("prompt should label chunks with reference markers")
	}
	if !strings.Contains(captured, "what is photosynthesis") {
		t.Error("prompt should include the question")
	}
	client.AssertExpectations(t)
}

func TestSynthesizeBoundsContext(t *testing.T) {
	client := &llm.MockClient{}
	var captured string
	client.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.String(2) }).
		Return("ok", nil)

	big := strings.Repeat("x", 400)
	s := New(client, 1000, testLog())
	ans, err := s.Synthesize(context.Background(), "q", intent.General,
		[]retrieval.Result{
			item("a.pdf", big, 1),
			item("a.pdf", big, 2),
			item("a.pdf", big, 3), // would overflow the 1000-char budget
			item("a.pdf", big, 4),
		},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.References) != 2 {
		t.Fatalf("got %d references, want 2 within budget", len(ans.References))
	}
	if strings.Contains(captured, "[Reference 3") {
		t.Error("over-budget chunks must not reach the prompt")
	}
}

func TestSynthesizeNoContentNamesDocuments(t *testing.T) {
	client := &llm.MockClient{}
	s := New(client, 12000, testLog())

	ans, err := s.Synthesize(context.Background(), "unanswerable", intent.General,
		nil, []string{"syllabus.pdf", "notes.docx"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Grounded {
		t.Error("fallback answer must not claim grounding")
	}
	if !strings.Contains(ans.Text, "syllabus.pdf") || !strings.Contains(ans.Text, "notes.docx") {
		t.Errorf("fallback should name available documents: %q", ans.Text)
	}
	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestSynthesizePropagatesLLMErrors(t *testing.T) {
	for _, sentinel := range []error{llm.ErrTimeout, llm.ErrQuota} {
		client := &llm.MockClient{}
		client.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", sentinel)
		s := New(client, 12000, testLog())

		_, err := s.Synthesize(context.Background(), "q", intent.General,
			[]retrieval.Result{item("a.pdf", "some content", 1)}, nil)
		if !errors.Is(err, sentinel) {
			t.Errorf("error should wrap %v, got %v", sentinel, err)
		}
	}
}

func TestIntentShapesSystemPrompt(t *testing.T) {
	client := &llm.MockClient{}
	var system string
	client.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { system = args.String(1) }).
		Return("ok", nil)

	s := New(client, 12000, testLog())
	_, err := s.Synthesize(context.Background(), "how do I enroll", intent.Procedure,
		[]retrieval.Result{item("handbook.pdf", "Enrollment opens in August via the portal.", 1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(system, "numbered list of steps") {
		t.Errorf("procedure intent should shape the system prompt, got %q", system)
	}
}
