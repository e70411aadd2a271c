package reload

import "errors"

var (
	// 以下三类会停止监控或需要用户修改配置
	ErrEmptyPath       = errors.New("monitored path is empty")
	ErrSelfReload      = errors.New("refusing to reload the running orchestrator")
	ErrInvalidManifest = errors.New("unit manifest has no valid name")

	// 可恢复：监控继续
	ErrHostOperation = errors.New("host operation failed")
	ErrUnexpected    = errors.New("unexpected reload failure")
)

// Result labels used for metrics and events.
const (
	ResultSuccess         = "success"
	ResultEmptyPath       = "empty_path"
	ResultInvalidManifest = "invalid_manifest"
	ResultSelfReload      = "self_reload"
	ResultHostError       = "host_error"
	ResultUnexpected      = "unexpected"
)

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrEmptyPath):
		return ResultEmptyPath
	case errors.Is(err, ErrInvalidManifest):
		return ResultInvalidManifest
	case errors.Is(err, ErrSelfReload):
		return ResultSelfReload
	case errors.Is(err, ErrHostOperation):
		return ResultHostError
	default:
		return ResultUnexpected
	}
}
