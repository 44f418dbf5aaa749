package host

import (
	"go.uber.org/zap"

	"github.com/wippyai/featurekit/session"
)

// View receives the installer's user-facing notifications.
type View interface {
	ShowMessage(msg string)
	ShowLoading(loading bool)
	ShowInstallFailure(err error)
	ShowUnsupported()
	ShowLenses(lenses []session.Lens)
	HideInstallButton()
}

// LogView reports notifications to a logger.
type LogView struct {
	Logger *zap.Logger
}

func (v LogView) log() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}

func (v LogView) ShowMessage(msg string) {
	v.log().Info(msg)
}

func (v LogView) ShowLoading(loading bool) {
	v.log().Debug("loading", zap.Bool("loading", loading))
}

func (v LogView) ShowInstallFailure(err error) {
	v.log().Error("feature install failed", zap.Error(err))
}

func (v LogView) ShowUnsupported() {
	v.log().Warn("feature is not supported on this host")
}

func (v LogView) ShowLenses(lenses []session.Lens) {
	ids := make([]string, 0, len(lenses))
	for _, l := range lenses {
		ids = append(ids, l.ID)
	}
	v.log().Info("lenses available", zap.Strings("lenses", ids))
}

func (v LogView) HideInstallButton() {}
