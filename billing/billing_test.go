package billing

import "testing"

func sub(id string, status Status) Subscription {
	return Subscription{ID: id, Status: status}
}

func TestPick(t *testing.T) {
	tests := []struct {
		name   string
		subs   []Subscription
		wantID string
		wantOK bool
	}{
		{
			name:   "empty list",
			subs:   nil,
			wantOK: false,
		},
		{
			name:   "active wins over trialing",
			subs:   []Subscription{sub("s1", StatusTrialing), sub("s2", StatusActive)},
			wantID: "s2",
			wantOK: true,
		},
		{
			name:   "past_due wins over unpaid",
			subs:   []Subscription{sub("s1", StatusUnpaid), sub("s2", StatusPastDue)},
			wantID: "s2",
			wantOK: true,
		},
		{
			name:   "canceled only is no subscription",
			subs:   []Subscription{sub("s1", StatusCanceled)},
			wantOK: false,
		},
		{
			name:   "canceled never wins over an eligible status",
			subs:   []Subscription{sub("s1", StatusCanceled), sub("s2", StatusUnpaid)},
			wantID: "s2",
			wantOK: true,
		},
		{
			name:   "unknown status ranks last among eligible",
			subs:   []Subscription{sub("s1", Status("paused")), sub("s2", StatusIncomplete)},
			wantID: "s2",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Pick(tt.subs)
			if ok != tt.wantOK {
				t.Fatalf("Pick ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("Pick = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestActiveEquivalent(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusTrialing} {
		if !s.ActiveEquivalent() {
			t.Errorf("%s should be active-equivalent", s)
		}
	}
	for _, s := range []Status{StatusPastDue, StatusIncomplete, StatusUnpaid, StatusCanceled} {
		if s.ActiveEquivalent() {
			t.Errorf("%s should not be active-equivalent", s)
		}
	}
}
