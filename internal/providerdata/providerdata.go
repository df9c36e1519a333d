// Package providerdata defines the ProviderData struct that is shared between
// the provider and its resources / data sources. It is separated into its own
// package to avoid import cycles (provider -> resource -> provider).
package providerdata

import (
	"github.com/hashicorp/terraform-plugin-framework/types"
	"golang.org/x/sync/semaphore"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

// ProviderData is configured during provider.Configure() and shared with
// resources via resp.ResourceData and resp.DataSourceData.
type ProviderData struct {
	Version        string
	DefaultTargets []string
	Targets        map[string]target.Target
	TargetConfigs  map[string]TargetConfigModel
	Semaphore      *semaphore.Weighted

	// IgnoreCache is shared by every resource and data source so an ignore
	// file is parsed once per provider process.
	IgnoreCache *ignore.Cache
}

// TargetConfigModel maps each target {} block in the provider configuration.
type TargetConfigModel struct {
	Name            types.String `tfsdk:"name"`
	Type            types.String `tfsdk:"type"`
	Prefix          types.String `tfsdk:"prefix"`
	Bucket          types.String `tfsdk:"bucket"`
	Region          types.String `tfsdk:"region"`
	KMSKeyID        types.String `tfsdk:"kms_key_id"`
	KMSKeyName      types.String `tfsdk:"kms_key_name"`
	StorageAccount  types.String `tfsdk:"storage_account"`
	ContainerName   types.String `tfsdk:"container_name"`
	EncryptionScope types.String `tfsdk:"encryption_scope"`
	Host            types.String `tfsdk:"host"`
	Port            types.Int64  `tfsdk:"port"`
	User            types.String `tfsdk:"user"`
	Password        types.String `tfsdk:"password"`
	PrivateKey      types.String `tfsdk:"private_key"`
	HostKey         types.String `tfsdk:"host_key"`
	MaxRetries      types.Int64  `tfsdk:"max_retries"`
	RetryBackoff    types.String `tfsdk:"retry_backoff"`
}
