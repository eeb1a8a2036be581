package inject

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/imagine/internal/config"
	"github.com/dmorgan81/imagine/internal/controller"
	"github.com/dmorgan81/imagine/internal/display"
	"github.com/dmorgan81/imagine/internal/handle"
	"github.com/dmorgan81/imagine/internal/handler"
	"github.com/dmorgan81/imagine/internal/image"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/dmorgan81/imagine/internal/page"
	"github.com/dmorgan81/imagine/internal/param"
	"github.com/dmorgan81/imagine/internal/session"
	"github.com/samber/do"
)

const imagesPrefix = "/images/"

func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*slog.Logger](injector, log)
	do.ProvideValue[*config.Config](injector, cfg)

	// AWS clients are only built when something asks for them.
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, http.DefaultClient)

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	do.ProvideNamedValue[string](injector, "endpoint", cfg.Endpoint)
	do.ProvideNamed[string](injector, "token", func(i *do.Injector) (string, error) {
		token, err := param.Resolve(ctx, lazyFetcher{i}, cfg.Token, cfg.TokenParam)
		if err != nil {
			return "", err
		}
		if token == "" {
			log.Warn("no hugging face token configured, generation requests will be rejected")
		}
		return token, nil
	})

	do.Provide[image.Generator](injector, image.NewHuggingFaceGenerator)
	do.ProvideValue[*display.MemoryStore](injector, display.NewMemoryStore(imagesPrefix))
	do.Provide[display.BytesToDisplayHandle](injector, func(i *do.Injector) (display.BytesToDisplayHandle, error) {
		switch cfg.DisplayBackend {
		case config.BackendDataURL:
			return display.DataURL{}, nil
		case config.BackendS3:
			return display.NewS3Store(do.MustInvoke[*s3.Client](i), cfg.Bucket, cfg.BucketPrefix, cfg.PresignTTL), nil
		default:
			return do.MustInvoke[*display.MemoryStore](i), nil
		}
	})
	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[*session.Manager](injector, func(i *do.Injector) (*session.Manager, error) {
		generator := do.MustInvoke[image.Generator](i)
		converter := do.MustInvoke[display.BytesToDisplayHandle](i)
		return session.NewManager(ctx, func(ctx context.Context) *controller.Controller {
			return controller.New(ctx, generator, converter)
		}, cfg.SessionTTL), nil
	})

	do.Provide[*handle.Server](injector, handle.NewServer)
	do.Provide[*handler.Handler](injector, handler.NewHandler)

	return injector
}

// lazyFetcher defers building the SSM client until a parameter is actually fetched.
type lazyFetcher struct {
	i *do.Injector
}

func (f lazyFetcher) Fetch(ctx context.Context, path string) (string, error) {
	fetcher, err := do.Invoke[param.Fetcher](f.i)
	if err != nil {
		return "", err
	}
	return fetcher.Fetch(ctx, path)
}
