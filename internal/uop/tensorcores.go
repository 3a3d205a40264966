package uop

// TensorCoreConfig names one hardware tensor-core matmul-accumulate
// shape a WMMA UOp can target (spec §4.6 "the implementation triple
// (shapes, lane layout, operand contract axes)"; supplemented per
// SPEC_FULL §10 from the original's per-dtype tensor_cores table so the
// linearizer's TC path has real configs to match against instead of one
// hardcoded shape).
type TensorCoreConfig struct {
	Name       string
	DimM       int
	DimN       int
	DimK       int
	ThreadsM   int // lanes along M contributed per thread
	ThreadsN   int
	InDType    DType
	AccDType   DType
}

// TensorCoreConfigs lists the built-in configurations the linearizer's
// TC-matching path searches, in preference order (larger tiles first).
var TensorCoreConfigs = []TensorCoreConfig{
	{Name: "wmma_8x8x16_f32", DimM: 8, DimN: 8, DimK: 16, ThreadsM: 2, ThreadsN: 2, InDType: Float32, AccDType: Float32},
	{Name: "wmma_4x4x8_f32", DimM: 4, DimN: 4, DimK: 8, ThreadsM: 1, ThreadsN: 1, InDType: Float32, AccDType: Float32},
}

// MatchTensorCore returns the first config compatible with a reduce-of-
// mul whose contracted dimension is k and input dtype is dtype, or
// (zero, false) when none fit — the linearizer falls back to a plain
// sequential reduce loop in that case (spec §4.6).
func MatchTensorCore(k int64, dtype DType) (TensorCoreConfig, bool) {
	for _, cfg := range TensorCoreConfigs {
		if dtype == cfg.InDType && k%int64(cfg.DimK) == 0 {
			return cfg, true
		}
	}
	return TensorCoreConfig{}, false
}
