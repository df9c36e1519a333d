package archive

import (
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// ArchiveResourceModel maps the zipbundle_archive resource schema to a Go struct.
type ArchiveResourceModel struct {
	// Config
	SourceDir              types.String `tfsdk:"source_dir"`
	IgnoreFile             types.String `tfsdk:"ignore_file"`
	OutputName             types.String `tfsdk:"output_name"`
	OutputDir              types.String `tfsdk:"output_dir"`
	ExcludeSecrets         types.Bool   `tfsdk:"exclude_secrets"`          // default false
	RejectExternalSymlinks types.Bool   `tfsdk:"reject_external_symlinks"` // default false
	BeforeCommand          types.String `tfsdk:"before_command"`
	AfterCommand           types.String `tfsdk:"after_command"`
	HookEnv                types.Map    `tfsdk:"hook_env"`            // optional map of strings
	Targets                types.List   `tfsdk:"targets"`             // optional list of strings
	RetainPublications     types.Int64  `tfsdk:"retain_publications"` // default 0, no pruning
	DeepDriftCheck         types.Bool   `tfsdk:"deep_drift_check"`    // default false
	ForceDestroy           types.Bool   `tfsdk:"force_destroy"`       // default false
	KeepArchiveOnDestroy   types.Bool   `tfsdk:"keep_archive_on_destroy"`
	ReportFormat           types.String `tfsdk:"report_format"` // default "text"

	// Computed
	ID            types.String `tfsdk:"id"`
	ArchivePath   types.String `tfsdk:"archive_path"`
	ArchiveHash   types.String `tfsdk:"archive_hash"`
	ArchiveSize   types.Int64  `tfsdk:"archive_size"`
	TotalFiles    types.Int64  `tfsdk:"total_files"`
	IncludedFiles types.List   `tfsdk:"included_files"`
	ExcludedFiles types.List   `tfsdk:"excluded_files"`
	SourceHash    types.String `tfsdk:"source_hash"`
	Report        types.String `tfsdk:"report"`
	Publications  types.Map    `tfsdk:"publications"`
}

// PublicationValue represents a single entry in the computed publications
// map. Each key is a target name.
type PublicationValue struct {
	PublicationID         types.String `tfsdk:"publication_id"`
	ArchiveHash           types.String `tfsdk:"archive_hash"`
	ManagedPublicationIDs types.List   `tfsdk:"managed_publication_ids"` // list of strings
}

// publicationAttrTypes returns the attribute type map for each entry in the
// publications map of objects.
func publicationAttrTypes() map[string]attr.Type {
	return map[string]attr.Type{
		"publication_id":          types.StringType,
		"archive_hash":            types.StringType,
		"managed_publication_ids": types.ListType{ElemType: types.StringType},
	}
}

func publicationsType() types.ObjectType {
	return types.ObjectType{AttrTypes: publicationAttrTypes()}
}
