package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/sync/semaphore"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/datasource/selection"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/resource/archive"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

const (
	defaultMaxConcurrency = 16
	defaultMaxRetries     = 3
	defaultRetryBackoff   = target.BackoffExponential
)

// Ensure ZipBundleProvider satisfies the provider.Provider interface.
var _ provider.Provider = &ZipBundleProvider{}

// ZipBundleProvider implements the zipbundle Terraform provider.
type ZipBundleProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and run locally.
	version string
}

// New returns a factory function that creates a new ZipBundleProvider
// instance for the given version string. This is the entry-point used in
// main.go.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &ZipBundleProvider{
			version: version,
		}
	}
}

// Metadata returns the provider type name.
func (p *ZipBundleProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "zipbundle"
	resp.Version = p.version
}

// Schema returns the provider schema.
func (p *ZipBundleProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The zipbundle provider packages local directories into zip archives, honoring a `.zipignore` file, and optionally publishes the archives to remote storage targets.",
		Attributes: map[string]schema.Attribute{
			"max_concurrency": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of concurrent object operations the provider will perform across all targets. Defaults to `16`.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"default_targets": schema.ListAttribute{
				MarkdownDescription: "List of target names that archives are published to when their own `targets` argument is not set.",
				Optional:            true,
				ElementType:         types.StringType,
			},
		},
		Blocks: map[string]schema.Block{
			"target": schema.ListNestedBlock{
				MarkdownDescription: "Defines a storage target archives can be published to. Targets are optional; without any, archives are only written locally.",
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "Unique name used to reference this target in resource configurations and `default_targets`.",
							Required:            true,
						},
						"type": schema.StringAttribute{
							MarkdownDescription: "Storage backend type. Supported values are `\"s3\"`, `\"azure\"`, `\"gcs\"`, `\"sftp\"`, and `\"memory\"`.",
							Required:            true,
							Validators: []validator.String{
								stringvalidator.OneOf(target.Types...),
							},
						},
						"prefix": schema.StringAttribute{
							MarkdownDescription: "Key prefix prepended to all object paths within the target. For `sftp` this is a directory on the server.",
							Optional:            true,
						},
						"bucket": schema.StringAttribute{
							MarkdownDescription: "S3 or GCS bucket name. Required for `s3` and `gcs` target types.",
							Optional:            true,
						},
						"region": schema.StringAttribute{
							MarkdownDescription: "AWS region for the S3 bucket.",
							Optional:            true,
						},
						"kms_key_id": schema.StringAttribute{
							MarkdownDescription: "AWS KMS key ID or ARN used for server-side encryption of S3 objects.",
							Optional:            true,
						},
						"kms_key_name": schema.StringAttribute{
							MarkdownDescription: "GCS Cloud KMS key resource name used for object encryption.",
							Optional:            true,
						},
						"storage_account": schema.StringAttribute{
							MarkdownDescription: "Azure Storage account name. Required for `azure` target type.",
							Optional:            true,
						},
						"container_name": schema.StringAttribute{
							MarkdownDescription: "Azure Blob Storage container name. Required for `azure` target type.",
							Optional:            true,
						},
						"encryption_scope": schema.StringAttribute{
							MarkdownDescription: "Azure encryption scope to apply when writing blobs.",
							Optional:            true,
						},
						"host": schema.StringAttribute{
							MarkdownDescription: "SFTP server host name. Required for `sftp` target type.",
							Optional:            true,
						},
						"port": schema.Int64Attribute{
							MarkdownDescription: "SFTP server port. Defaults to `22`.",
							Optional:            true,
							Validators: []validator.Int64{
								int64validator.Between(1, 65535),
							},
						},
						"user": schema.StringAttribute{
							MarkdownDescription: "SFTP user name.",
							Optional:            true,
						},
						"password": schema.StringAttribute{
							MarkdownDescription: "SFTP password.",
							Optional:            true,
							Sensitive:           true,
						},
						"private_key": schema.StringAttribute{
							MarkdownDescription: "PEM-encoded private key for SFTP public key authentication.",
							Optional:            true,
							Sensitive:           true,
						},
						"host_key": schema.StringAttribute{
							MarkdownDescription: "Expected SFTP server host key in `authorized_keys` format. When omitted the host key is not verified.",
							Optional:            true,
						},
						"max_retries": schema.Int64Attribute{
							MarkdownDescription: "Maximum number of retries for failed operations against this target. Defaults to `3`.",
							Optional:            true,
							Validators: []validator.Int64{
								int64validator.AtLeast(0),
							},
						},
						"retry_backoff": schema.StringAttribute{
							MarkdownDescription: "Retry backoff strategy for this target. Supported values are `\"exponential\"` and `\"linear\"`. Defaults to `\"exponential\"`.",
							Optional:            true,
							Validators: []validator.String{
								stringvalidator.OneOf(target.BackoffExponential, target.BackoffLinear),
							},
						},
					},
				},
			},
		},
	}
}

// Configure parses the provider configuration, validates targets, builds
// target.Target instances, and stores everything in ProviderData for
// downstream resources and data sources.
func (p *ZipBundleProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var config ProviderModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &config)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// ----------------------------------------------------------------
	// Resolve top-level defaults
	// ----------------------------------------------------------------
	maxConcurrency := int64(defaultMaxConcurrency)
	if !config.MaxConcurrency.IsNull() && !config.MaxConcurrency.IsUnknown() {
		maxConcurrency = config.MaxConcurrency.ValueInt64()
	}

	var defaultTargets []string
	if !config.DefaultTargets.IsNull() && !config.DefaultTargets.IsUnknown() {
		resp.Diagnostics.Append(config.DefaultTargets.ElementsAs(ctx, &defaultTargets, false)...)
		if resp.Diagnostics.HasError() {
			return
		}
	}

	// ----------------------------------------------------------------
	// Validate and build targets
	// ----------------------------------------------------------------
	targets := make(map[string]target.Target, len(config.Targets))
	targetConfigs := make(map[string]TargetConfigModel, len(config.Targets))

	for _, tc := range config.Targets {
		name := tc.Name.ValueString()
		if name == "" {
			resp.Diagnostics.AddError(
				"Invalid Target Configuration",
				"Every target block must have a non-empty name attribute.",
			)
			return
		}

		if _, exists := targets[name]; exists {
			resp.Diagnostics.AddError(
				"Duplicate Target Name",
				fmt.Sprintf("Target name %q is defined more than once.", name),
			)
			return
		}

		if tc.Type.ValueString() == "" {
			resp.Diagnostics.AddError(
				"Invalid Target Configuration",
				fmt.Sprintf("Target %q must have a non-empty type attribute.", name),
			)
			return
		}

		t, err := target.NewTarget(targetConfig(tc))
		if err != nil {
			resp.Diagnostics.AddError(
				"Target Initialization Failed",
				fmt.Sprintf("Failed to create target %q: %s", name, err),
			)
			return
		}

		targets[name] = t
		targetConfigs[name] = tc
	}

	// Validate that every entry in default_targets references a defined target.
	for _, dt := range defaultTargets {
		if _, exists := targets[dt]; !exists {
			resp.Diagnostics.AddError(
				"Invalid Default Target",
				fmt.Sprintf("default_targets references %q which is not defined as a target block.", dt),
			)
			return
		}
	}

	tflog.Debug(ctx, "Configured zipbundle provider", map[string]interface{}{
		"targets":         len(targets),
		"default_targets": defaultTargets,
		"max_concurrency": maxConcurrency,
	})

	pd := &ProviderData{
		Version:        p.version,
		DefaultTargets: defaultTargets,
		Targets:        targets,
		TargetConfigs:  targetConfigs,
		Semaphore:      semaphore.NewWeighted(maxConcurrency),
		IgnoreCache:    ignore.NewCache(),
	}

	resp.DataSourceData = pd
	resp.ResourceData = pd
}

// Resources returns the set of resource types supported by this provider.
func (p *ZipBundleProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		archive.NewArchiveResource,
	}
}

// DataSources returns the set of data source types supported by this provider.
func (p *ZipBundleProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		selection.NewFileSelectionDataSource,
	}
}

// targetConfig converts a target block into a target.Config, applying the
// per-target defaults.
func targetConfig(tc TargetConfigModel) target.Config {
	maxRetries := int64(defaultMaxRetries)
	if !tc.MaxRetries.IsNull() && !tc.MaxRetries.IsUnknown() {
		maxRetries = tc.MaxRetries.ValueInt64()
	}

	backoff := defaultRetryBackoff
	if !tc.RetryBackoff.IsNull() && !tc.RetryBackoff.IsUnknown() {
		backoff = tc.RetryBackoff.ValueString()
	}

	var port int64
	if !tc.Port.IsNull() && !tc.Port.IsUnknown() {
		port = tc.Port.ValueInt64()
	}

	return target.Config{
		Name:            tc.Name.ValueString(),
		Type:            tc.Type.ValueString(),
		Prefix:          tc.Prefix.ValueString(),
		Bucket:          tc.Bucket.ValueString(),
		Region:          tc.Region.ValueString(),
		KMSKeyID:        tc.KMSKeyID.ValueString(),
		KMSKeyName:      tc.KMSKeyName.ValueString(),
		StorageAccount:  tc.StorageAccount.ValueString(),
		ContainerName:   tc.ContainerName.ValueString(),
		EncryptionScope: tc.EncryptionScope.ValueString(),
		Host:            tc.Host.ValueString(),
		Port:            int(port),
		User:            tc.User.ValueString(),
		Password:        tc.Password.ValueString(),
		PrivateKey:      tc.PrivateKey.ValueString(),
		HostKey:         tc.HostKey.ValueString(),
		MaxRetries:      int(maxRetries),
		RetryBackoff:    backoff,
	}
}
