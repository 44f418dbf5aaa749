package split

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/internal/testpkg"
)

const registration = "META-INF/services/com.example.feature.Feature"

type recorder struct {
	states []State
	mu     sync.Mutex
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Status)
	}
	return out
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

type fixture struct {
	catalog    string
	installDir string
	target     *classloader.StaticLoader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		catalog:    filepath.Join(root, "catalog"),
		installDir: filepath.Join(root, "installed"),
		target:     classloader.NewStaticLoader("host", nil, classloader.Config{}),
	}
	files := map[string][]byte{
		registration:      []byte("com.example.plugin.FeatureImpl\n"),
		"assets/clip.txt": []byte("clip"),
	}
	testpkg.WriteSource(t, filepath.Join(f.catalog, "feature"), files)
	testpkg.WriteSource(t, filepath.Join(f.catalog, "extras.zip"), files)
	return f
}

func (f *fixture) manager(t *testing.T, m *Metrics) *Local {
	t.Helper()
	l, err := NewLocal(LocalConfig{Catalog: f.catalog, InstallDir: f.installDir, Target: f.target, Metrics: m})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if c := out.GetCounter(); c != nil {
		return c.GetValue()
	}
	return out.GetGauge().GetValue()
}

func waitTask(t *testing.T, task *Task) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-task.Done():
		return task.Err()
	case <-ctx.Done():
		t.Fatal("install task did not finish")
		return nil
	}
}

func TestLocal_Install(t *testing.T) {
	tests := []struct {
		name   string
		module string
		file   string
	}{
		{"directory module", "feature", "feature"},
		{"zip module", "extras", "extras.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)
			l := f.manager(t, metrics)

			available, err := l.AvailableModules()
			if err != nil || len(available) != 2 {
				t.Fatalf("AvailableModules = %v, %v", available, err)
			}

			var rec recorder
			unregister := l.RegisterListener(rec.record)
			defer unregister()

			task, err := l.StartInstall(context.Background(), NewRequest(tt.module))
			if err != nil {
				t.Fatalf("StartInstall: %v", err)
			}
			if err := waitTask(t, task); err != nil {
				t.Fatalf("install: %v", err)
			}

			want := []Status{Pending, Downloading, Downloading, Installing, Installed}
			got := rec.statuses()
			if len(got) != len(want) {
				t.Fatalf("statuses = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("status[%d] = %v, want %v", i, got[i], want[i])
				}
			}
			last := rec.last()
			if last.TaskID != task.ID() || last.Downloaded == 0 || last.Downloaded != last.Total {
				t.Errorf("final state = %+v", last)
			}
			if task.Status() != Installed {
				t.Errorf("task status = %v", task.Status())
			}

			if mods := l.InstalledModules(); len(mods) != 1 || mods[0] != tt.module {
				t.Errorf("InstalledModules = %v", mods)
			}
			if _, err := os.Stat(filepath.Join(f.installDir, tt.file)); err != nil {
				t.Errorf("module not copied: %v", err)
			}
			res, err := f.target.Resources(registration)
			if err != nil || len(res) != 1 {
				t.Errorf("target registrations = %v, %v", res, err)
			}

			if v := metricValue(t, metrics.Installs.WithLabelValues("installed")); v != 1 {
				t.Errorf("installs_total{installed} = %v", v)
			}
			if v := metricValue(t, metrics.Installed); v != 1 {
				t.Errorf("installed_modules = %v", v)
			}
		})
	}
}

func TestLocal_AlreadyInstalled(t *testing.T) {
	f := newFixture(t)
	l := f.manager(t, nil)

	first, err := l.StartInstall(context.Background(), NewRequest("feature"))
	if err != nil {
		t.Fatal(err)
	}
	if err := waitTask(t, first); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	l.RegisterListener(rec.record)
	again, err := l.StartInstall(context.Background(), NewRequest("feature", "feature"))
	if err != nil {
		t.Fatal(err)
	}
	if err := waitTask(t, again); err != nil {
		t.Fatal(err)
	}
	if last := rec.last(); last.Status != Installed || last.Total != 0 {
		t.Errorf("reinstall state = %+v", last)
	}
	if res, _ := f.target.Resources(registration); len(res) != 1 {
		t.Errorf("module added twice: %d registrations", len(res))
	}
}

func TestLocal_PersistsAcrossRestart(t *testing.T) {
	f := newFixture(t)
	l := f.manager(t, nil)
	task, err := l.StartInstall(context.Background(), NewRequest("feature", "extras"))
	if err != nil {
		t.Fatal(err)
	}
	if err := waitTask(t, task); err != nil {
		t.Fatal(err)
	}

	f.target = classloader.NewStaticLoader("host", nil, classloader.Config{})
	restarted := f.manager(t, nil)
	mods := restarted.InstalledModules()
	if len(mods) != 2 || mods[0] != "extras" || mods[1] != "feature" {
		t.Fatalf("InstalledModules after restart = %v", mods)
	}
	if res, _ := f.target.Resources(registration); len(res) != 2 {
		t.Errorf("registrations after restart = %d", len(res))
	}
}

func TestLocal_Failures(t *testing.T) {
	t.Run("unknown module", func(t *testing.T) {
		f := newFixture(t)
		l := f.manager(t, nil)
		var rec recorder
		l.RegisterListener(rec.record)

		task, err := l.StartInstall(context.Background(), NewRequest("missing"))
		if err != nil {
			t.Fatal(err)
		}
		err = waitTask(t, task)
		if !stderrors.Is(err, errors.KindOf(errors.KindNotFound)) {
			t.Fatalf("task error = %v", err)
		}
		if last := rec.last(); last.Status != Failed || last.Err == nil {
			t.Errorf("final state = %+v", last)
		}
		if len(l.InstalledModules()) != 0 {
			t.Error("nothing should be installed")
		}
	})

	t.Run("canceled", func(t *testing.T) {
		f := newFixture(t)
		l := f.manager(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		task, err := l.StartInstall(ctx, NewRequest("feature"))
		if err != nil {
			t.Fatal(err)
		}
		if err := waitTask(t, task); !stderrors.Is(err, context.Canceled) {
			t.Fatalf("task error = %v", err)
		}
		if task.Status() != Canceled {
			t.Errorf("status = %v", task.Status())
		}
	})

	t.Run("bad requests", func(t *testing.T) {
		l := newFixture(t).manager(t, nil)
		for _, req := range []Request{{}, NewRequest("../escape"), NewRequest("")} {
			if _, err := l.StartInstall(context.Background(), req); !stderrors.Is(err, errors.KindOf(errors.KindInvalidInput)) {
				t.Errorf("StartInstall(%v) error = %v", req.Modules, err)
			}
		}
	})

	t.Run("config", func(t *testing.T) {
		if _, err := NewLocal(LocalConfig{Catalog: "x", InstallDir: "y"}); err == nil {
			t.Error("missing target should fail")
		}
		if _, err := NewLocal(LocalConfig{Target: classloader.NewStaticLoader("h", nil, classloader.Config{})}); err == nil {
			t.Error("missing directories should fail")
		}
	})
}

func TestLocal_RejectsConcurrentInstallOfSameModule(t *testing.T) {
	f := newFixture(t)
	l := f.manager(t, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unregister := l.RegisterListener(func(s State) {
		if s.Status == Pending {
			once.Do(func() { close(entered) })
			<-release
		}
	})

	task, err := l.StartInstall(context.Background(), NewRequest("feature"))
	if err != nil {
		t.Fatal(err)
	}
	<-entered

	if _, err := l.StartInstall(context.Background(), NewRequest("feature")); err == nil {
		t.Error("second install of a running module should fail")
	}
	unregister()
	close(release)

	if err := waitTask(t, task); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := l.StartInstall(context.Background(), NewRequest("feature")); err != nil {
		t.Errorf("install after completion: %v", err)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		name     string
		terminal bool
	}{
		{Pending, "pending", false},
		{Downloading, "downloading", false},
		{Installing, "installing", false},
		{Installed, "installed", true},
		{Failed, "failed", true},
		{Canceled, "canceled", true},
		{Status(99), "status(99)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.status.String() != tt.name || tt.status.Terminal() != tt.terminal {
				t.Errorf("%d: String = %s, Terminal = %v", int(tt.status), tt.status.String(), tt.status.Terminal())
			}
		})
	}
}
