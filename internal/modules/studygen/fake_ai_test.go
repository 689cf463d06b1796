package studygen

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/openai"
)

// fakeAI is a deterministic generation double. respond receives the request
// and the 1-based call number.
type fakeAI struct {
	mu          sync.Mutex
	calls       []openai.GenerateRequest
	inFlight    int32
	maxInFlight int32
	respond     func(req openai.GenerateRequest, call int) (openai.Generation, error)
}

func (f *fakeAI) Generate(ctx context.Context, req openai.GenerateRequest) (openai.Generation, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if cur <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if err := ctx.Err(); err != nil {
		return openai.Generation{}, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(req, n)
	}
	return openai.Generation{Text: "{}", TokensUsed: 1}, nil
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAI) callsMatching(pred func(openai.GenerateRequest) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if pred(c) {
			n++
		}
	}
	return n
}

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func testEstimation() TokenEstimation {
	return TokenEstimation{CharsPerToken: 4, OverheadMultiplier: 1}
}

func testPolicy() TierPolicy {
	return TierPolicy{
		Name:          "standard",
		Threshold:     25000,
		ChunkSize:     8000,
		MaxDepth:      1,
		MaxChunks:     50,
		ParallelLimit: 10,
		ModelsByDepth: []DepthModels{
			{MapModel: "map-0", ReduceModel: "reduce-0"},
			{MapModel: "map-1", ReduceModel: "map-1"},
		},
		DefaultModel:             "map-0",
		FallbackModel:            "fallback",
		TokenEstimation:          testEstimation(),
		SummarizationCompression: 3,
	}
}

func testPolicySource(t interface{ Fatalf(string, ...any) }, p TierPolicy) PolicySource {
	src, err := NewStaticPolicySource(map[string]TierPolicy{"standard": p}, "standard")
	if err != nil {
		t.Fatalf("build policy source: %v", err)
	}
	return src
}
