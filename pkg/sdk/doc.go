// Package sdk embeds the cpuprof profiling endpoint into a Go application.
//
// An application either lets the SDK run its own listener or mounts the
// profile handler on an existing mux:
//
//	prof, err := sdk.New(sdk.Config{Addr: "127.0.0.1:6070"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer prof.Close()
//
//	// or, without a dedicated listener:
//	prof, _ := sdk.New(sdk.Config{})
//	mux.Handle(sdk.ProfilePath, prof.Handler())
//
// Profiles are fetched with `go tool pprof http://<addr>/debug/pprof/profile?seconds=10`
// or `cpuprof fetch`.
package sdk
