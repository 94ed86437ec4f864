package enums

import "testing"

func TestPaymentStatusPredicates(t *testing.T) {
	cases := []struct {
		status     PaymentStatus
		successful bool
		pending    bool
		rejected   bool
		final      bool
		refundable bool
	}{
		{PaymentStatusPending, false, true, false, false, false},
		{PaymentStatusInProcess, false, true, false, false, false},
		{PaymentStatusApproved, true, false, false, false, true},
		{PaymentStatusRejected, false, false, true, true, false},
		{PaymentStatusCancelled, false, false, true, true, false},
		{PaymentStatusRefunded, false, false, false, true, false},
		{PaymentStatusChargedBack, false, false, false, true, false},
	}

	for _, tc := range cases {
		if got := tc.status.IsSuccessful(); got != tc.successful {
			t.Errorf("%s: IsSuccessful = %v, want %v", tc.status, got, tc.successful)
		}
		if got := tc.status.IsPending(); got != tc.pending {
			t.Errorf("%s: IsPending = %v, want %v", tc.status, got, tc.pending)
		}
		if got := tc.status.IsRejected(); got != tc.rejected {
			t.Errorf("%s: IsRejected = %v, want %v", tc.status, got, tc.rejected)
		}
		if got := tc.status.IsFinal(); got != tc.final {
			t.Errorf("%s: IsFinal = %v, want %v", tc.status, got, tc.final)
		}
		if got := tc.status.CanBeRefunded(); got != tc.refundable {
			t.Errorf("%s: CanBeRefunded = %v, want %v", tc.status, got, tc.refundable)
		}
	}
}

func TestParsePaymentStatus(t *testing.T) {
	status, err := ParsePaymentStatus("charged_back")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if status != PaymentStatusChargedBack {
		t.Fatalf("expected charged_back, got %s", status)
	}

	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
