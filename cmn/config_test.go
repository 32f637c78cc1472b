package cmn

import "testing"

func TestGuardScalar(t *testing.T) {
	cases := []struct {
		name    string
		mode    CacheMode
		wantErr bool
	}{
		{"local ok", CacheMode{Local: true}, false},
		{"replicated ok", CacheMode{Replicated: true}, false},
		{"transactional near ok", CacheMode{Transactional: true, NearEnabled: true}, false},
		{"transactional no near fails", CacheMode{Transactional: true}, true},
		{"atomic only fails", CacheMode{Atomic: true}, true},
		{"dht only fails", CacheMode{Dht: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := GuardScalar("s1", tc.mode)
			if (err != nil) != tc.wantErr {
				t.Errorf("GuardScalar() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && KindOf(err) != KindModeMismatch {
				t.Errorf("KindOf() = %q, want %q", KindOf(err), KindModeMismatch)
			}
		})
	}
}

func TestGuardQueue(t *testing.T) {
	cases := []struct {
		name    string
		mode    CacheMode
		wantErr bool
	}{
		{"atomic primary ok", CacheMode{Atomic: true, WriteOrder: PrimaryOrder}, false},
		{"atomic clock fails", CacheMode{Atomic: true, WriteOrder: ClockOrder}, true},
		{"transactional ok", CacheMode{Transactional: true}, false},
		{"dht ok", CacheMode{Dht: true}, false},
		{"local ok", CacheMode{Local: true}, false},
		{"unrecognized fails", CacheMode{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := GuardQueue("q1", tc.mode)
			if (err != nil) != tc.wantErr {
				t.Errorf("GuardQueue() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestEffectiveCollocated(t *testing.T) {
	if !EffectiveCollocated(CacheMode{Transactional: true}, false) {
		t.Error("non-partitioned cache must force collocated=true")
	}
	if EffectiveCollocated(CacheMode{Dht: true}, false) {
		t.Error("partitioned cache must honor requested=false")
	}
	if !EffectiveCollocated(CacheMode{Dht: true}, true) {
		t.Error("partitioned cache must honor requested=true")
	}
}

func TestReservationSize(t *testing.T) {
	if got := (CacheMode{}).ReservationSize(); got != 1 {
		t.Errorf("ReservationSize() default = %d, want 1", got)
	}
	if got := (CacheMode{ReserveSize: 50}).ReservationSize(); got != 50 {
		t.Errorf("ReservationSize() = %d, want 50", got)
	}
}
