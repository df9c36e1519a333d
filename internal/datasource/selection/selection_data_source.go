// Package selection implements the zipbundle_file_selection data source: a
// dry run of the packager that reports which files an archive would contain.
package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/packager"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/providerdata"
)

var (
	_ datasource.DataSource              = &FileSelectionDataSource{}
	_ datasource.DataSourceWithConfigure = &FileSelectionDataSource{}
)

// NewFileSelectionDataSource returns a new datasource.DataSource for the
// zipbundle_file_selection type.
func NewFileSelectionDataSource() datasource.DataSource {
	return &FileSelectionDataSource{}
}

// FileSelectionDataSource implements the zipbundle_file_selection data source.
type FileSelectionDataSource struct {
	providerData *providerdata.ProviderData
}

// FileSelectionModel maps the data source schema to a Go struct.
type FileSelectionModel struct {
	SourceDir      types.String `tfsdk:"source_dir"`
	IgnoreFile     types.String `tfsdk:"ignore_file"`
	ExcludeSecrets types.Bool   `tfsdk:"exclude_secrets"`

	ID            types.String `tfsdk:"id"`
	IncludedFiles types.List   `tfsdk:"included_files"`
	ExcludedFiles types.List   `tfsdk:"excluded_files"`
	Patterns      types.List   `tfsdk:"patterns"`
	SourceHash    types.String `tfsdk:"source_hash"`
}

func (d *FileSelectionDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_file_selection"
}

func (d *FileSelectionDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists the files a `zipbundle_archive` with the same settings would include and exclude, without writing an archive.",
		Attributes: map[string]schema.Attribute{
			"source_dir": schema.StringAttribute{
				MarkdownDescription: "Directory to inspect.",
				Required:            true,
			},
			"ignore_file": schema.StringAttribute{
				MarkdownDescription: "Path to the ignore file. A relative path is taken inside `source_dir`. Defaults to `.zipignore` inside `source_dir`.",
				Optional:            true,
			},
			"exclude_secrets": schema.BoolAttribute{
				MarkdownDescription: "Also exclude well-known credential files.",
				Optional:            true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "Absolute path of the inspected directory.",
				Computed:            true,
			},
			"included_files": schema.ListAttribute{
				MarkdownDescription: "Relative paths that would be archived, in discovery order.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"excluded_files": schema.ListAttribute{
				MarkdownDescription: "Relative paths that would be skipped.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"patterns": schema.ListAttribute{
				MarkdownDescription: "Patterns parsed from the ignore file.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"source_hash": schema.StringAttribute{
				MarkdownDescription: "Hash over the included files and their contents. Matches `source_hash` of an archive built from the same files.",
				Computed:            true,
			},
		},
	}
}

func (d *FileSelectionDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	d.providerData = pd
}

func (d *FileSelectionDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var config FileSelectionModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &config)...)
	if resp.Diagnostics.HasError() {
		return
	}

	var cache *ignore.Cache
	if d.providerData != nil {
		cache = d.providerData.IgnoreCache
	}

	sel, err := packager.Select(ctx, cache, packager.Options{
		SourceFolder:   config.SourceDir.ValueString(),
		IgnoreFile:     config.IgnoreFile.ValueString(),
		ExcludeSecrets: config.ExcludeSecrets.ValueBool(),
	})
	if err != nil {
		summary := "File Selection Failed"
		if errors.Is(err, packager.ErrInvalidSourceFolder) {
			summary = "Invalid Source Directory"
		}
		resp.Diagnostics.AddError(summary, err.Error())
		return
	}

	sourceHash, err := sel.SourceHash()
	if err != nil {
		resp.Diagnostics.AddError("Source Hash Failed", err.Error())
		return
	}

	tflog.Debug(ctx, "Selected files", map[string]interface{}{
		"source_dir": sel.SourceFolder,
		"included":   len(sel.Included()),
		"excluded":   len(sel.Excluded()),
	})

	config.ID = types.StringValue(sel.SourceFolder)
	config.SourceHash = types.StringValue(sourceHash)

	for _, l := range []struct {
		dst  *types.List
		vals []string
	}{
		{&config.IncludedFiles, sel.Included()},
		{&config.ExcludedFiles, sel.Excluded()},
		{&config.Patterns, sel.Patterns},
	} {
		if l.vals == nil {
			l.vals = []string{}
		}
		v, diags := types.ListValueFrom(ctx, types.StringType, l.vals)
		resp.Diagnostics.Append(diags...)
		*l.dst = v
	}
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &config)...)
}
