// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

/*
Package supervisor provides process supervision for Rewardloop using suture v4.

Long-running services are organized into three layers for failure isolation:

	RootSupervisor ("rewardloop")
	├── DataSupervisor ("data-layer")
	│   └── SnapshotService (if snapshots are enabled)
	├── LearningSupervisor ("learning-layer")
	│   ├── SweepService
	│   └── DecayService (if decay.interval > 0)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (ops: /metrics, /healthz)

Crashed services are restarted with suture's backoff. Supervisor events are
written through logging.NewSlogLogger via sutureslog, so they share the
process's zerolog output.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(logger), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddLearningService(services.NewSweepService(eng, cfg.Attribution.FlushInterval, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

The service wrappers live in the services subpackage.
*/
package supervisor
