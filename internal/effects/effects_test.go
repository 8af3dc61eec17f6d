package effects

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// script replays fixed draws and returns 0 once exhausted.
type script struct {
	values []int
	pos    int
}

func (s *script) IntN(n int) int {
	if s.pos >= len(s.values) {
		return 0
	}
	v := s.values[s.pos]
	s.pos++
	if v < 0 || v >= n {
		panic(fmt.Sprintf("scripted draw %d outside [0,%d)", v, n))
	}
	return v
}

// recorder wraps a seeded source and keeps every draw.
type recorder struct {
	r     *rand.Rand
	draws []int
}

func (r *recorder) IntN(n int) int {
	v := r.r.IntN(n)
	r.draws = append(r.draws, v)
	return v
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	return buf
}

func TestRandomSliceBounds(t *testing.T) {
	for length := MinOffset; length <= 160; length++ {
		buf := pattern(length)
		r := seeded(uint64(length))
		for range 50 {
			region, err := RandomSlice(buf, r)
			if err != nil {
				t.Fatalf("len %d: RandomSlice: %v", length, err)
			}
			if region.Start < MinOffset || region.Start > length {
				t.Fatalf("len %d: start %d out of [%d,%d]", length, region.Start, MinOffset, length)
			}
			if region.Length < 0 || region.Length > length-region.Start {
				t.Fatalf("len %d: length %d out of [0,%d]", length, region.Length, length-region.Start)
			}
			if !bytes.Equal(region.Bytes, buf[region.Start:region.End()]) {
				t.Fatalf("len %d: region bytes do not match buffer", length)
			}
		}
	}
}

func TestRandomSliceCopiesBytes(t *testing.T) {
	buf := pattern(100)
	region, err := RandomSlice(buf, &script{values: []int{8, 10}})
	if err != nil {
		t.Fatalf("RandomSlice: %v", err)
	}
	if region.Start != 40 || region.Length != 10 {
		t.Fatalf("unexpected region %d+%d", region.Start, region.Length)
	}
	buf[40] ^= 0xff
	if region.Bytes[0] == buf[40] {
		t.Fatal("region bytes alias the buffer")
	}
}

func TestRandomSliceRejectsShortBuffer(t *testing.T) {
	_, err := RandomSlice(make([]byte, MinOffset-1), seeded(1))
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
}

func TestEveryEffectRejectsUndersizedBuffer(t *testing.T) {
	short := pattern(MinOffset - 1)
	for _, e := range sampleEffects(t) {
		got, err := Apply(slices.Clone(short), e, seeded(7))
		if !errors.Is(err, ErrBufferTooSmall) {
			t.Fatalf("%s: expected ErrBufferTooSmall, got %v", e, err)
		}
		if !bytes.Equal(got, short) {
			t.Fatalf("%s: buffer changed on failure", e)
		}
	}
}

func TestEffectsNeverTouchHeader(t *testing.T) {
	for _, e := range sampleEffects(t) {
		for seed := range uint64(40) {
			orig := pattern(400)
			got, err := Apply(slices.Clone(orig), e, seeded(seed))
			if err != nil {
				t.Fatalf("%s seed %d: %v", e, seed, err)
			}
			if !bytes.Equal(got[:MinOffset], orig[:MinOffset]) {
				t.Fatalf("%s seed %d: header bytes modified", e, seed)
			}
		}
	}
}

func TestAddWrapsModulo256(t *testing.T) {
	buf := bytes.Repeat([]byte{250}, 100)
	got, err := Apply(buf, Add(10), &script{values: []int{8, 10}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := bytes.Repeat([]byte{250}, 100)
	for i := 40; i < 50; i++ {
		want[i] = 4
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("add mismatch (-want +got):\n%s", diff)
	}
}

func TestAddNegativeIncrementWraps(t *testing.T) {
	buf := bytes.Repeat([]byte{3}, 64)
	got, err := Apply(buf, Add(-300), &script{values: []int{0, 1}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// 3 - 300 = -297 ≡ 215 (mod 256)
	if got[32] != 215 {
		t.Fatalf("expected 215, got %d", got[32])
	}
	if got[33] != 3 {
		t.Fatalf("byte outside region changed: %d", got[33])
	}
}

func TestEachByteSkipsOnTails(t *testing.T) {
	buf := bytes.Repeat([]byte{9}, 64)
	// start=32, length=4, coins: apply, skip, apply, skip
	got, err := Apply(buf, Add(1), &script{values: []int{0, 4, 0, 1, 0, 1}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []byte{10, 9, 10, 9}
	if diff := cmp.Diff(want, got[32:36]); diff != "" {
		t.Fatalf("coin handling mismatch (-want +got):\n%s", diff)
	}
}

func TestModConstruction(t *testing.T) {
	for _, m := range []int{0, -1, 257, 1000} {
		if _, err := Mod(m); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("Mod(%d): expected ErrInvalidParameter, got %v", m, err)
		}
	}
	for _, m := range []int{1, 7, 256} {
		if _, err := Mod(m); err != nil {
			t.Fatalf("Mod(%d): unexpected error %v", m, err)
		}
	}
}

func TestModReducesBytes(t *testing.T) {
	e, err := Mod(16)
	if err != nil {
		t.Fatalf("Mod: %v", err)
	}
	buf := pattern(64)
	orig := slices.Clone(buf)
	got, err := Apply(buf, e, &script{values: []int{0, 32}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i := 32; i < 64; i++ {
		if got[i] != orig[i]%16 {
			t.Fatalf("offset %d: got %d want %d", i, got[i], orig[i]%16)
		}
	}
}

func TestNumericEffectsCoerceAndWrap(t *testing.T) {
	buf := make([]byte, 64)
	buf[32] = 0 // log(0) = -Inf: left untouched
	buf[33] = 2 // tan(2) = -2.18 -> -2 -> 254
	buf[34] = 200

	got, err := Apply(slices.Clone(buf), Log(), &script{values: []int{0, 3}})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if got[32] != 0 {
		t.Fatalf("log(0) should leave byte untouched, got %d", got[32])
	}
	if got[34] != 5 { // ln(200) = 5.29
		t.Fatalf("log(200): got %d want 5", got[34])
	}

	got, err = Apply(slices.Clone(buf), Tan(), &script{values: []int{0, 3}})
	if err != nil {
		t.Fatalf("tan: %v", err)
	}
	if got[33] != 254 {
		t.Fatalf("tan(2): got %d want 254", got[33])
	}

	got, err = Apply(slices.Clone(buf), Sin(), &script{values: []int{0, 3}})
	if err != nil {
		t.Fatalf("sin: %v", err)
	}
	if got[34] != 0 {
		t.Fatalf("sin(200): got %d want 0", got[34])
	}
}

func TestReverseIsInvolution(t *testing.T) {
	orig := pattern(100)
	// Same draws twice: start=40, length=10.
	r := &script{values: []int{8, 10, 8, 10}}
	once, err := Apply(slices.Clone(orig), Reverse(), r)
	if err != nil {
		t.Fatalf("first reverse: %v", err)
	}
	if bytes.Equal(once, orig) {
		t.Fatal("reverse did not change the region")
	}
	twice, err := Apply(once, Reverse(), r)
	if err != nil {
		t.Fatalf("second reverse: %v", err)
	}
	if diff := cmp.Diff(orig, twice); diff != "" {
		t.Fatalf("reverse twice mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicateThenDeleteRestores(t *testing.T) {
	const clip = 8
	e, err := Duplicate(clip)
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	for seed := range uint64(100) {
		orig := pattern(120)
		r := &recorder{r: seeded(seed)}
		got, err := Apply(slices.Clone(orig), e, r)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(got) != len(orig)+clip {
			t.Fatalf("seed %d: length %d want %d", seed, len(got), len(orig)+clip)
		}
		at := MinOffset + r.draws[1]
		restored := slices.Delete(got, at, at+clip)
		if !bytes.Equal(restored, orig) {
			t.Fatalf("seed %d: deleting inserted clip at %d did not restore buffer", seed, at)
		}
	}
}

func TestShiftPreservesLengthAndContent(t *testing.T) {
	e, err := Shift(10)
	if err != nil {
		t.Fatalf("Shift: %v", err)
	}
	for seed := range uint64(50) {
		orig := pattern(200)
		got, err := Apply(slices.Clone(orig), e, seeded(seed))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(got) != len(orig) {
			t.Fatalf("seed %d: length changed to %d", seed, len(got))
		}
		a, b := slices.Clone(orig), slices.Clone(got)
		slices.Sort(a)
		slices.Sort(b)
		if !bytes.Equal(a, b) {
			t.Fatalf("seed %d: shift is not a permutation", seed)
		}
	}
}

func TestShiftMovesClip(t *testing.T) {
	e, _ := Shift(4)
	orig := pattern(64)
	// start=40, insert at 32 of the shortened buffer.
	got, err := Apply(slices.Clone(orig), e, &script{values: []int{8, 0}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := slices.Concat(orig[:32], orig[40:44], orig[32:40], orig[44:])
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("shift mismatch (-want +got):\n%s", diff)
	}
}

func TestStutterRepeatsClipInPlace(t *testing.T) {
	e, err := Stutter(5, 2, 4)
	if err != nil {
		t.Fatalf("Stutter: %v", err)
	}
	orig := pattern(100)
	// start=40, repeats=2+1=3
	got, err := Apply(slices.Clone(orig), e, &script{values: []int{8, 1}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	clip := orig[40:45]
	want := slices.Concat(orig[:40], clip, clip, clip, orig[40:])
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stutter mismatch (-want +got):\n%s", diff)
	}
}

func TestStutterGrowthMatchesRepeats(t *testing.T) {
	e, _ := Stutter(16, 10, 90)
	for seed := range uint64(30) {
		orig := pattern(500)
		got, err := Apply(slices.Clone(orig), e, seeded(seed))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		grown := len(got) - len(orig)
		if grown%16 != 0 || grown < 16*10 || grown > 16*90 {
			t.Fatalf("seed %d: unexpected growth %d", seed, grown)
		}
	}
}

func TestDilateGroupsBytes(t *testing.T) {
	const factor = 3
	e, err := Dilate(factor)
	if err != nil {
		t.Fatalf("Dilate: %v", err)
	}
	orig := pattern(100)
	got, err := Apply(slices.Clone(orig), e, &script{values: []int{8, 10}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != len(orig)+(factor-1)*10 {
		t.Fatalf("length %d want %d", len(got), len(orig)+(factor-1)*10)
	}
	for i := range 10 {
		group := got[40+i*factor : 40+(i+1)*factor]
		for _, b := range group {
			if b != orig[40+i] {
				t.Fatalf("group %d: got %v want repeats of %d", i, group, orig[40+i])
			}
		}
	}
	if !bytes.Equal(got[:40], orig[:40]) || !bytes.Equal(got[40+10*factor:], orig[50:]) {
		t.Fatal("bytes outside the dilated slice changed")
	}
}

func TestBurstRepeatsChunksAtSortedPositions(t *testing.T) {
	e, err := Burst(2, 4, 1, 1)
	if err != nil {
		t.Fatalf("Burst: %v", err)
	}
	orig := pattern(100)
	// Fixed repeat range draws nothing; positions 32+20=52 and 32+5=37.
	got, err := Apply(slices.Clone(orig), e, &script{values: []int{20, 5}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := slices.Concat(orig[:37], orig[37:41], orig[37:52], orig[52:56], orig[52:])
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("burst mismatch (-want +got):\n%s", diff)
	}
}

func TestFixedLengthEffectsNeedRoomForClip(t *testing.T) {
	orig := pattern(120)
	e, _ := Shift(100)
	got, err := Apply(slices.Clone(orig), e, seeded(3))
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
	if !bytes.Equal(got, orig) {
		t.Fatal("buffer changed on failure")
	}
}

func TestApplyRejectsInvalidEffect(t *testing.T) {
	orig := pattern(64)
	got, err := Apply(slices.Clone(orig), Effect{Kind: KindMod, Value: 0}, seeded(1))
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if !bytes.Equal(got, orig) {
		t.Fatal("invalid effect mutated buffer")
	}
}

func TestConstructorsValidate(t *testing.T) {
	cases := []struct {
		name string
		fn   func() (Effect, error)
	}{
		{"shift zero", func() (Effect, error) { return Shift(0) }},
		{"duplicate negative", func() (Effect, error) { return Duplicate(-4) }},
		{"stutter zero length", func() (Effect, error) { return Stutter(0, 1, 2) }},
		{"stutter inverted range", func() (Effect, error) { return Stutter(10, 5, 2) }},
		{"stutter negative min", func() (Effect, error) { return Stutter(10, -1, 2) }},
		{"dilate zero", func() (Effect, error) { return Dilate(0) }},
		{"burst zero count", func() (Effect, error) { return Burst(0, 10, 1, 2) }},
		{"burst zero size", func() (Effect, error) { return Burst(3, 0, 1, 2) }},
		{"stutter max int repeats", func() (Effect, error) { return Stutter(4, 0, math.MaxInt) }},
		{"stutter huge length", func() (Effect, error) { return Stutter(MaxClipLength+1, 1, 2) }},
		{"shift huge length", func() (Effect, error) { return Shift(math.MaxInt) }},
		{"dilate huge factor", func() (Effect, error) { return Dilate(1 << 62) }},
		{"burst huge count", func() (Effect, error) { return Burst(MaxBurstCount+1, 8, 1, 2) }},
		{"burst huge repeats", func() (Effect, error) { return Burst(2, 8, 1, MaxRepeats+1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.fn(); !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func sampleEffects(t *testing.T) []Effect {
	t.Helper()
	must := func(e Effect, err error) Effect {
		t.Helper()
		if err != nil {
			t.Fatalf("construct effect: %v", err)
		}
		return e
	}
	return []Effect{
		must(Mod(7)),
		Add(5),
		Log(),
		Sin(),
		Tan(),
		Reverse(),
		must(Shift(8)),
		must(Duplicate(8)),
		must(Stutter(8, 1, 3)),
		must(Dilate(2)),
		must(Burst(3, 8, 1, 2)),
	}
}

func TestParseRejectsOverflowingParameters(t *testing.T) {
	for _, text := range []string{
		"stutter:4:0-9223372036854775807",
		"stutter:4:4611686018427387904",
		"stutter:4611686018427387904:2",
		"dilate:4611686018427387904",
		"burst:4611686018427387904:8:1-2",
	} {
		if _, err := Parse(text); !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("Parse(%q): expected ErrInvalidParameter, got %v", text, err)
		}
	}
}

func TestCeilingParametersApplyWithoutPanic(t *testing.T) {
	cases := []Effect{
		{Kind: KindStutter, Length: 4, Min: 0, Max: MaxRepeats},
		{Kind: KindDilate, Value: MaxDilate},
		{Kind: KindBurst, Count: 4, Length: 4, Min: MaxRepeats, Max: MaxRepeats},
	}
	for _, e := range cases {
		t.Run(e.String(), func(t *testing.T) {
			if _, err := Apply(pattern(128), e, seeded(9)); err != nil && !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestGrowingEffectsRespectBufferCeiling(t *testing.T) {
	prev := maxBufferSize
	maxBufferSize = 256
	t.Cleanup(func() { maxBufferSize = prev })

	cases := []struct {
		name  string
		e     Effect
		draws []int
	}{
		// clip at 32, 100 repeats of 8 bytes.
		{"stutter", Effect{Kind: KindStutter, Length: 8, Min: 100, Max: 100}, []int{0}},
		// slice [32, 96), every byte quadrupled.
		{"dilate", Effect{Kind: KindDilate, Value: 4}, []int{0, 64}},
		{"burst", Effect{Kind: KindBurst, Count: 2, Length: 8, Min: 20, Max: 20}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orig := pattern(96)
			got, err := Apply(slices.Clone(orig), tc.e, &script{values: tc.draws})
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			if !bytes.Equal(got, orig) {
				t.Fatal("buffer changed on failure")
			}
		})
	}
}
