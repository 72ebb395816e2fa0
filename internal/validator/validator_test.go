package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/models"
)

type fakeRepair struct {
	text  string
	err   error
	calls int
	last  *models.GenerateRequest
}

func (f *fakeRepair) Name() string { return "repair" }

func (f *fakeRepair) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.GenerateResponse{Text: f.text}, nil
}

func testValidatorConfig() config.ValidatorConfig {
	return config.ValidatorConfig{MaxWords: 50, SkipWords: 25, SkipLines: 3}
}

func TestScanFlagsUnaskedPaymentQuestion(t *testing.T) {
	v := New(nil, testValidatorConfig())
	issues := v.Scan("do you have standing desks?", "We do! How would you like to pay?")
	if len(issues) != 1 || !strings.Contains(issues[0], "payment") {
		t.Errorf("issues = %v", issues)
	}

	// Buy intent in the customer message clears the same rule.
	issues = v.Scan("i want to buy a desk", "Great! How would you like to pay?")
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestScanFlagsUnaskedPrice(t *testing.T) {
	v := New(nil, testValidatorConfig())
	issues := v.Scan("do you have standing desks?", "We do, only 1200 NIS!")
	if len(issues) != 1 || !strings.Contains(issues[0], "price") {
		t.Errorf("issues = %v", issues)
	}

	issues = v.Scan("how much is the desk?", "It is 1200 NIS.")
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestScanFlagsUnaskedExplainer(t *testing.T) {
	v := New(nil, testValidatorConfig())
	issues := v.Scan("hi", "Our desk works by a dual motor lift system.")
	if len(issues) != 1 {
		t.Errorf("issues = %v", issues)
	}

	issues = v.Scan("how does the desk work?", "It works by a dual motor lift system.")
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestScanFlagsInventedFacts(t *testing.T) {
	v := New(nil, testValidatorConfig())

	issues := v.Scan("when will it arrive?", "Delivery takes 2-3 days.")
	if len(issues) != 1 || !strings.Contains(issues[0], "delivery") {
		t.Errorf("issues = %v", issues)
	}

	issues = v.Scan("any deals?", "This week there is a special offer on desks.")
	if len(issues) != 1 || !strings.Contains(issues[0], "promotion") {
		t.Errorf("issues = %v", issues)
	}
}

func TestScanFlagsLongReply(t *testing.T) {
	v := New(nil, testValidatorConfig())
	issues := v.Scan("hi", strings.Repeat("word ", 60))
	if len(issues) != 1 || !strings.Contains(issues[0], "too long") {
		t.Errorf("issues = %v", issues)
	}
}

func TestScanStandsDownForShortAffirmative(t *testing.T) {
	v := New(nil, testValidatorConfig())
	// "yes, tell me" invites detail; the price rule must not fire.
	issues := v.Scan("yes, tell me", "The desk costs 1200 NIS and works by a dual motor.")
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestReviewSkipsShortCleanDraft(t *testing.T) {
	repair := &fakeRepair{text: "should not be used"}
	v := New(repair, testValidatorConfig())

	draft := "We have standing desks in stock. Want to hear more?"
	got := v.Review(context.Background(), "do you have desks?", draft)
	if got != draft {
		t.Errorf("Review = %q, want the untouched draft", got)
	}
	if repair.calls != 0 {
		t.Errorf("repair calls = %d, want 0", repair.calls)
	}
}

func TestReviewRepairsFlaggedDraft(t *testing.T) {
	repair := &fakeRepair{text: "**We have desks.** Want to hear more?"}
	v := New(repair, testValidatorConfig())

	got := v.Review(context.Background(), "do you have desks?", "We do, only 1200 NIS! How would you like to pay?")
	if got != "We have desks. Want to hear more?" {
		t.Errorf("Review = %q", got)
	}
	if repair.calls != 1 {
		t.Fatalf("repair calls = %d, want 1", repair.calls)
	}
	if !strings.Contains(repair.last.Message, "price") {
		t.Errorf("repair prompt missing issue hint: %q", repair.last.Message)
	}
}

func TestReviewRepairsLongCleanDraft(t *testing.T) {
	// Over the skip threshold but under the hard cap: repaired for
	// length even with zero rule hits.
	repair := &fakeRepair{text: "Shorter now."}
	v := New(repair, testValidatorConfig())

	draft := strings.Repeat("word ", 30)
	got := v.Review(context.Background(), "hi", draft)
	if got != "Shorter now." {
		t.Errorf("Review = %q", got)
	}
}

func TestReviewReleasesOriginalOnRepairFailure(t *testing.T) {
	repair := &fakeRepair{err: errors.New("backend down")}
	v := New(repair, testValidatorConfig())

	draft := "We do, only 1200 NIS! How would you like to pay?"
	got := v.Review(context.Background(), "do you have desks?", draft)
	if got != draft {
		t.Errorf("Review = %q, want the original draft", got)
	}
}
