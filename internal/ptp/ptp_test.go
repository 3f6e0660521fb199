package ptp

import "testing"

func TestGetReturnsSameHandle(t *testing.T) {
	r := NewRegistry()
	a := r.Get(0)
	b := r.Get(0)
	if a != b {
		t.Error("Get(domain) twice should return the same handle")
	}
}

func TestLocalDomainNeverLocked(t *testing.T) {
	r := NewRegistry()
	h := r.Get(LocalDomain)
	if h.IsLocked() {
		t.Error("local domain handle should never report locked")
	}
	if h.OffsetNs() != 0 {
		t.Errorf("local domain OffsetNs() = %d, want 0", h.OffsetNs())
	}
}

type fakeHelper struct {
	locked bool
	nowNs  uint64
}

func (f *fakeHelper) NowNs() uint64    { return f.nowNs }
func (f *fakeHelper) IsLocked() bool   { return f.locked }
func (f *fakeHelper) MasterID() string { return "test-master" }
func (f *fakeHelper) OffsetNs() int64  { return 42 }

func TestUnlockedHelperFallsBackToLocalClock(t *testing.T) {
	r := NewRegistry()
	h := r.Get(0)
	h.SetHelper(&fakeHelper{locked: false, nowNs: 999})

	if h.IsLocked() {
		t.Error("unlocked helper should report IsLocked() == false")
	}
	if got := h.NowNs(); got == 999 {
		t.Error("unlocked helper's NowNs should not be used; expected local clock fallback")
	}
}

func TestLockedHelperIsUsed(t *testing.T) {
	r := NewRegistry()
	h := r.Get(0)
	h.SetHelper(&fakeHelper{locked: true, nowNs: 123456})

	if !h.IsLocked() {
		t.Error("locked helper should report IsLocked() == true")
	}
	if got := h.NowNs(); got != 123456 {
		t.Errorf("NowNs() = %d, want 123456 from locked helper", got)
	}
}

func TestDisabledRegistryForcesLocalClock(t *testing.T) {
	r := NewRegistry()
	h := r.Get(0)
	h.SetHelper(&fakeHelper{locked: true, nowNs: 123456})
	r.SetEnabled(false)

	if h.IsLocked() {
		t.Error("disabled registry should force IsLocked() == false")
	}
	if got := h.NowNs(); got == 123456 {
		t.Error("disabled registry should force local clock fallback")
	}
}

func TestMonotonicity(t *testing.T) {
	r := NewRegistry()
	h := r.Get(LocalDomain)
	t1 := h.NowNs()
	t2 := h.NowNs()
	if t2 < t1 {
		t.Errorf("NowNs() went backwards: %d then %d", t1, t2)
	}
	if h.NowUs() > h.NowMs()*1000+1000 {
		t.Error("derived unit conversions should remain monotonic relative to each other")
	}
}

func TestRemoveAllowsFreshHandle(t *testing.T) {
	r := NewRegistry()
	h1 := r.Get(5)
	r.Remove(5)
	h2 := r.Get(5)
	if h1 == h2 {
		t.Error("Get after Remove should construct a fresh handle")
	}
}

func TestTimeForStreamUsesLocalForNegativeDomain(t *testing.T) {
	r := NewRegistry()
	r.Get(0).SetHelper(&fakeHelper{locked: true, nowNs: 1 << 62})
	if got := r.TimeForStream(-1); got >= 1<<62 {
		t.Errorf("TimeForStream(-1) = %d, want the local clock rather than domain 0's locked helper", got)
	}
}
