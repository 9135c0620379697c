package backend

import "context"

// Local satisfies ValidationServices without any network access. It is
// what the standalone validate subcommand runs against: every app is
// treated as proprietary (the strictest setting) and the build record
// is empty, so build-log checks are skipped.
type Local struct{}

func (Local) IsFreeSoftware(ctx context.Context, appID, license string) (bool, error) {
	return false, nil
}

func (Local) Build(ctx context.Context) (*BuildExtended, error) {
	return &BuildExtended{}, nil
}
