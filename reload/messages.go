package reload

import (
	"fmt"

	"hotswap-go/infrastructure/alert"
)

type messages struct {
	n *alert.Notifier
}

func result(unit, res string) map[string]interface{} {
	return map[string]interface{}{"event": "reload_result", "unit": unit, "result": res}
}

func (m messages) success(unit string) {
	m.n.Info("Hotswap successfully completed.", result(unit, ResultSuccess))
}

func (m messages) emptyPath() {
	m.n.Error("Watched path is empty. Set a file or folder to monitor before hotswapping.",
		result("", ResultEmptyPath))
}

func (m messages) invalidManifest(path string) {
	fields := result("", ResultInvalidManifest)
	fields["path"] = path
	m.n.Error("Unable to read a valid name from the unit's manifest. Fix the manifest and save again; continuing to monitor.", fields)
}

func (m messages) selfReload(unit string) {
	m.n.Error(fmt.Sprintf("Refusing to hotswap '%s': it is the unit running the hotswap. Monitoring has been stopped.", unit),
		result(unit, ResultSelfReload))
}

func (m messages) disabledPrior(unit string) {
	m.n.Info(fmt.Sprintf("Disabled previous unit '%s'.", unit), nil)
}

func (m messages) hostError(unit string, err error) {
	fields := result(unit, ResultHostError)
	fields["error"] = err.Error()
	m.n.Error("Hotswap failed in the host. Continuing to monitor.", fields)
}

func (m messages) unexpected(err interface{}) {
	fields := result("", ResultUnexpected)
	fields["error"] = fmt.Sprint(err)
	m.n.Error("Hotswap failed unexpectedly. Continuing to monitor.", fields)
}
