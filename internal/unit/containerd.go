package unit

import (
	"context"
	"log/slog"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/errs"
	"github.com/jroosing/labnet/internal/logging"
)

// Containerd runs units as containerd containers in a dedicated namespace.
type Containerd struct {
	client      *containerd.Client
	namespace   string
	stopTimeout time.Duration
	logger      *slog.Logger
}

// NewContainerd connects to the containerd socket named in cfg.
func NewContainerd(cfg config.RuntimeConfig, logger *slog.Logger) (*Containerd, error) {
	client, err := containerd.New(cfg.Socket)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalTool, err, "failed to connect to containerd")
	}
	return &Containerd{
		client:      client,
		namespace:   cfg.Namespace,
		stopTimeout: cfg.StopTimeout,
		logger:      logging.Component(logger, "unit"),
	}, nil
}

// Close closes the containerd client connection.
func (r *Containerd) Close() error {
	return r.client.Close()
}

func (r *Containerd) image(ctx context.Context, ref string) (containerd.Image, error) {
	img, err := r.client.GetImage(ctx, ref)
	if err == nil {
		return img, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, errs.Wrap(errs.ExternalTool, err, "failed to get image %s", ref)
	}
	r.logger.Info("pulling image", "image", ref)
	img, err = r.client.Pull(ctx, ref, containerd.WithPullUnpack)
	if err != nil {
		return nil, errs.Wrap(errs.ExternalTool, err, "failed to pull image %s", ref)
	}
	return img, nil
}

func (r *Containerd) Create(ctx context.Context, spec Spec) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	img, err := r.image(ctx, spec.Image)
	if err != nil {
		return err
	}

	mounts := make([]specs.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		opts := []string{"rbind"}
		if m.ReadOnly {
			opts = append(opts, "ro")
		} else {
			opts = append(opts, "rw")
		}
		mounts = append(mounts, specs.Mount{Source: m.Source, Destination: m.Target, Type: "bind", Options: opts})
	}

	_, err = r.client.NewContainer(
		ctx,
		spec.Name,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(spec.Name+"-snapshot", img),
		containerd.WithNewSpec(
			oci.WithImageConfig(img),
			oci.WithHostname(spec.Name),
			oci.WithEnv(spec.Env),
			oci.WithMounts(mounts),
		),
	)
	if err != nil {
		return errs.Wrap(errs.ExternalTool, err, "failed to create unit %s", spec.Name)
	}
	return nil
}

func (r *Containerd) Start(ctx context.Context, name string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, name)
	if err != nil {
		return r.loadErr(name, err)
	}

	if task, err := container.Task(ctx, nil); err == nil {
		status, err := task.Status(ctx)
		if err == nil && status.Status == containerd.Running {
			return nil
		}
		// Leftover task from a previous run
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil {
			return errs.Wrap(errs.ExternalTool, err, "failed to clear old task of %s", name)
		}
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return errs.Wrap(errs.ExternalTool, err, "failed to create task for %s", name)
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
		return errs.Wrap(errs.ExternalTool, err, "failed to start %s", name)
	}
	return nil
}

func (r *Containerd) Stop(ctx context.Context, name string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, name)
	if err != nil {
		return r.loadErr(name, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task means not running
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, r.stopTimeout)
	defer cancel()

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return errs.Wrap(errs.ExternalTool, err, "failed to wait for %s", name)
	}
	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil && !errdefs.IsNotFound(err) {
		return errs.Wrap(errs.ExternalTool, err, "failed to stop %s", name)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		r.logger.Warn("unit did not stop in time, killing", "unit", name, "timeout", r.stopTimeout)
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
			return errs.Wrap(errs.ExternalTool, err, "failed to kill %s", name)
		}
	}

	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return errs.Wrap(errs.ExternalTool, err, "failed to delete task of %s", name)
	}
	return nil
}

func (r *Containerd) Delete(ctx context.Context, name string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return r.loadErr(name, err)
	}
	if err := r.Stop(ctx, name); err != nil {
		r.logger.Warn("failed to stop unit before delete", "unit", name, "err", err)
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return errs.Wrap(errs.ExternalTool, err, "failed to delete unit %s", name)
	}
	return nil
}

func (r *Containerd) Status(ctx context.Context, name string) (bool, string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, "", nil
		}
		return false, "", r.loadErr(name, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return true, StateStopped, nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return true, "", errs.Wrap(errs.ExternalTool, err, "failed to get status of %s", name)
	}
	switch status.Status {
	case containerd.Running, containerd.Paused, containerd.Pausing:
		return true, StateRunning, nil
	default:
		return true, StateStopped, nil
	}
}

func (r *Containerd) PID(ctx context.Context, name string) (int, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, name)
	if err != nil {
		return 0, r.loadErr(name, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return 0, errs.New(errs.ExternalTool, "unit %s is not running", name)
	}
	return int(task.Pid()), nil
}

func (r *Containerd) loadErr(name string, err error) error {
	if errdefs.IsNotFound(err) {
		return errs.New(errs.NotFound, "unit %s does not exist", name)
	}
	return errs.Wrap(errs.ExternalTool, err, "failed to load unit %s", name)
}
