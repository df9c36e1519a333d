package provider

import "github.com/zipbundle/terraform-provider-zipbundle/internal/providerdata"

// ProviderData is an alias for the shared ProviderData type. The canonical
// definition lives in the providerdata package so resource packages can
// import it without a cycle.
type ProviderData = providerdata.ProviderData

// TargetConfigModel is an alias for the shared TargetConfigModel type.
type TargetConfigModel = providerdata.TargetConfigModel
