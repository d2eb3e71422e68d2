// Package gasops supervises the local services that make up the 九九瓦斯行
// stack: the Next.js front end, the LINE bot backend and the voice service.
//
// A Supervisor starts each service's instances on consecutive ports,
// checks their health, restarts failing ones and journals everything to a
// SQLite file in its state directory. Only one supervisor may own a state
// directory at a time.
//
// # Basic Usage
//
//	import "github.com/jiujiugas/gasops"
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	sup := gasops.NewSupervisor(
//	    gasops.WithStateDir(".gasops"),
//	    gasops.WithServicesFile("gasops-services.yaml"),
//	)
//	if err := sup.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sup.Shutdown()
//
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Services
//
// Services come from the YAML services file, written with the stock
// services when missing, and from WithService. Instance n of a service
// listens on Port+n and receives PORT, SERVICE_NAME, INSTANCE_ID and
// PERSISTENT_PATH in its environment.
//
// # Recovery
//
// Each health pass scores every instance from 0 to 100 and restarts one
// that exited or failed WithMaxConsecutiveFailures checks in a row. The
// recovery pass tops services up to their minimum instance count and
// applies the RecoveryStrategy to services with fewer than half of their
// instances running.
package gasops
