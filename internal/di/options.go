package di

type Region string
type StagingBucket string

// Option is a function that configures the dependency injection container.
type Option func(*options)

func WithRegion(region string) Option {
	return func(opts *options) {
		opts.region = Region(region)
	}
}

func WithStagingBucket(bucket string) Option {
	return func(opts *options) {
		opts.stagingBucket = StagingBucket(bucket)
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func() *merge.Registry { return merge.NewRegistry() },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	region        Region
	stagingBucket StagingBucket
	providers     []any
}
