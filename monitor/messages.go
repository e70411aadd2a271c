package monitor

import (
	"fmt"
	"time"

	"hotswap-go/infrastructure/alert"
)

// messages 汇总监控器的所有用户提示
type messages struct {
	n *alert.Notifier
}

func (m messages) watching(path string) {
	m.n.Info("Watching for updates...", map[string]interface{}{"event": "monitor_state", "state": StateActive, "path": path})
}

func (m messages) secured() {
	m.n.Info("Monitoring is secured.", map[string]interface{}{"event": "monitor_state", "state": StateInactive})
}

func (m messages) alreadyActive() {
	m.n.Info("Monitoring is already active. Continuing to monitor...", nil)
}

func (m messages) invalidDirectory(path string) {
	m.n.Error("Watched path is invalid. Unable to monitor until provided a valid file or folder path.",
		map[string]interface{}{"path": path})
}

func (m messages) pathMissing(path string) {
	m.n.Error(fmt.Sprintf("The file or folder '%s' does not exist.", path), map[string]interface{}{"path": path})
}

func (m messages) deletedFiles(count int) {
	noun := "file"
	if count > 1 {
		noun = "files"
	}
	m.n.Info(fmt.Sprintf("Found %d deleted %s.", count, noun),
		map[string]interface{}{"event": "files_deleted", "count": count})
}

func (m messages) updatedFile(path string) {
	m.n.Info("Found an updated file.", map[string]interface{}{"event": "file_changed", "path": path})
}

func (m messages) unableToUnsubscribe(key string) {
	m.n.Warn(fmt.Sprintf("Unable to unsubscribe '%s'. This key was never registered.", key), nil)
}

func (m messages) pathChanged(path string) {
	m.n.Info("Watched path changed.", map[string]interface{}{"path": path})
}

func (m messages) rejectedPath(tried, current string) {
	m.n.Error("Watched path must be a file or folder that exists. Keeping the current path.",
		map[string]interface{}{"tried": tried, "current": current})
}

func (m messages) rejectedPollInterval(current time.Duration) {
	m.n.Error("Poll interval must be greater than 0. Keeping the current interval.",
		map[string]interface{}{"current": current.String()})
}

func (m messages) scanFailed(path string, err error) {
	m.n.Warn("Scan failed, retrying on next poll.", map[string]interface{}{"path": path, "error": err.Error()})
}
