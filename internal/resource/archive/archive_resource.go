package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64default"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringdefault"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/engine"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/packager"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/providerdata"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/report"
)

// Compile-time interface checks.
var (
	_ resource.Resource                = &ArchiveResource{}
	_ resource.ResourceWithConfigure   = &ArchiveResource{}
	_ resource.ResourceWithModifyPlan  = &ArchiveResource{}
	_ resource.ResourceWithImportState = &ArchiveResource{}
)

// NewArchiveResource returns a new resource.Resource for the
// zipbundle_archive type.
func NewArchiveResource() resource.Resource {
	return &ArchiveResource{}
}

// ArchiveResource implements the zipbundle_archive Terraform resource.
type ArchiveResource struct {
	providerData *providerdata.ProviderData
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (r *ArchiveResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_archive"
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

func (r *ArchiveResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Packages a local directory into a zip archive, skipping files matched by the ignore file, and optionally publishes the archive to storage targets.",

		Attributes: map[string]schema.Attribute{
			// ---- Required ----
			"source_dir": schema.StringAttribute{
				MarkdownDescription: "Path to the directory to package. Entry names inside the archive are relative to this directory.",
				Required:            true,
			},

			// ---- Optional ----
			"ignore_file": schema.StringAttribute{
				MarkdownDescription: "Path to the ignore file. A relative path is taken inside `source_dir`. Defaults to `.zipignore` inside `source_dir`. A missing file excludes nothing.",
				Optional:            true,
			},
			"output_name": schema.StringAttribute{
				MarkdownDescription: "Archive base name without the `.zip` extension. Defaults to the base name of `source_dir`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
					stringvalidator.NoneOf(".", ".."),
				},
			},
			"output_dir": schema.StringAttribute{
				MarkdownDescription: "Directory that receives the archive. A relative path is taken inside `source_dir`. Defaults to `source_dir`; the archive itself is never packaged.",
				Optional:            true,
			},
			"exclude_secrets": schema.BoolAttribute{
				MarkdownDescription: "Also exclude well-known credential files such as `.env`, private keys and keystores. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"reject_external_symlinks": schema.BoolAttribute{
				MarkdownDescription: "Fail packaging when an included symlink resolves outside `source_dir`. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"before_command": schema.StringAttribute{
				MarkdownDescription: "Shell script run in `source_dir` before packaging. A failure is reported as a warning and does not stop packaging.",
				Optional:            true,
			},
			"after_command": schema.StringAttribute{
				MarkdownDescription: "Shell script run in `source_dir` after packaging, whether or not packaging succeeded.",
				Optional:            true,
			},
			"hook_env": schema.MapAttribute{
				MarkdownDescription: "Extra environment variables for `before_command` and `after_command`.",
				Optional:            true,
				ElementType:         types.StringType,
			},
			"targets": schema.ListAttribute{
				MarkdownDescription: "Target names to publish the archive to. When omitted the provider's `default_targets` are used; if those are also empty and exactly one target is configured, that target is used.",
				Optional:            true,
				ElementType:         types.StringType,
			},
			"retain_publications": schema.Int64Attribute{
				MarkdownDescription: "Number of older publications to keep on each target besides the latest. `0` disables pruning. Defaults to `0`.",
				Optional:            true,
				Computed:            true,
				Default:             int64default.StaticInt64(0),
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},
			"deep_drift_check": schema.BoolAttribute{
				MarkdownDescription: "When `true`, refresh downloads each published archive and verifies its hash rather than only checking that it exists. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"force_destroy": schema.BoolAttribute{
				MarkdownDescription: "On destroy, delete every publication under the archive's prefix, including ones this resource did not create. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"keep_archive_on_destroy": schema.BoolAttribute{
				MarkdownDescription: "Leave the local archive file in place on destroy. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"report_format": schema.StringAttribute{
				MarkdownDescription: "Format of the `report` attribute. Supported values are `\"text\"` and `\"yaml\"`. Defaults to `\"text\"`.",
				Optional:            true,
				Computed:            true,
				Default:             stringdefault.StaticString(report.FormatText),
				Validators: []validator.String{
					stringvalidator.OneOf(report.FormatText, report.FormatYAML),
				},
			},

			// ---- Computed ----
			"id": schema.StringAttribute{
				MarkdownDescription: "Absolute path of the archive.",
				Computed:            true,
			},
			"archive_path": schema.StringAttribute{
				MarkdownDescription: "Absolute path of the archive.",
				Computed:            true,
			},
			"archive_hash": schema.StringAttribute{
				MarkdownDescription: "SHA-256 hash of the archive file.",
				Computed:            true,
			},
			"archive_size": schema.Int64Attribute{
				MarkdownDescription: "Size of the archive file in bytes.",
				Computed:            true,
			},
			"total_files": schema.Int64Attribute{
				MarkdownDescription: "Number of entries written to the archive.",
				Computed:            true,
			},
			"included_files": schema.ListAttribute{
				MarkdownDescription: "Relative paths written to the archive, in discovery order.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"excluded_files": schema.ListAttribute{
				MarkdownDescription: "Relative paths that were skipped.",
				Computed:            true,
				ElementType:         types.StringType,
			},
			"source_hash": schema.StringAttribute{
				MarkdownDescription: "Deterministic SHA-256 hash over the archived entries and their contents.",
				Computed:            true,
			},
			"report": schema.StringAttribute{
				MarkdownDescription: "Human-readable (or YAML) report of the last packaging run.",
				Computed:            true,
			},
			"publications": schema.MapNestedAttribute{
				MarkdownDescription: "Per-target publication state. Keys are target names.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"publication_id": schema.StringAttribute{
							MarkdownDescription: "Publication currently pointed to by the LATEST marker.",
							Computed:            true,
						},
						"archive_hash": schema.StringAttribute{
							MarkdownDescription: "Archive hash of that publication. Empty when the publication is damaged.",
							Computed:            true,
						},
						"managed_publication_ids": schema.ListAttribute{
							MarkdownDescription: "Publication IDs created by this resource instance and not yet pruned.",
							Computed:            true,
							ElementType:         types.StringType,
						},
					},
				},
			},
		},
	}
}

// --------------------------------------------------------------------------
// Configure
// --------------------------------------------------------------------------

func (r *ArchiveResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Resource Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	r.providerData = pd
}

// --------------------------------------------------------------------------
// Create
// --------------------------------------------------------------------------

func (r *ArchiveResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan ArchiveResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 1. Resolve targets.
	resolvedTargets, diags := r.resolveTargets(ctx, plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 2. Package.
	b, diags := build(ctx, r.providerData.IgnoreCache, plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(applyBuilt(ctx, &plan, b)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 3. Publish.
	eng := engine.New(r.providerData.Semaphore)
	pubs, published, diags := r.publishAll(ctx, eng, b, plan, resolvedTargets, nil)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	pubsVal, diags := publicationsValue(ctx, pubs)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}
	plan.Publications = pubsVal

	resp.Diagnostics.Append(renderReport(&plan, b, published)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Info(ctx, "Created archive", map[string]interface{}{
		"archive_path": b.result.ArchivePath,
		"files":        b.result.FilesWritten,
		"targets":      len(pubs),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Read (refresh)
// --------------------------------------------------------------------------

func (r *ArchiveResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state ArchiveResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	archivePath := state.ArchivePath.ValueString()

	// 1. A missing local archive means the resource must be recreated.
	info, err := os.Stat(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			tflog.Info(ctx, "archive file not found, removing from state", map[string]interface{}{
				"archive_path": archivePath,
			})
			resp.State.RemoveResource(ctx)
			return
		}
		resp.Diagnostics.AddError("Archive Read Failed", fmt.Sprintf("Failed to stat %q: %s", archivePath, err))
		return
	}

	// 2. Re-hash the local archive so out-of-band edits show as drift.
	hash, err := bundle.ComputeFileHash(archivePath)
	if err != nil {
		resp.Diagnostics.AddError("Archive Read Failed", err.Error())
		return
	}
	if hash != state.ArchiveHash.ValueString() {
		tflog.Warn(ctx, "local archive changed outside Terraform", map[string]interface{}{
			"archive_path": archivePath,
			"expected":     state.ArchiveHash.ValueString(),
			"actual":       hash,
		})
		state.ArchiveHash = types.StringValue(hash)
		state.ArchiveSize = types.Int64Value(info.Size())

		// An archive that no longer opens has no meaningful source hash.
		sourceHash := ""
		if entries, err := packager.EntryHashes(archivePath); err == nil {
			sourceHash = bundle.ComputeSourceHash(entries)
		}
		state.SourceHash = types.StringValue(sourceHash)
	}
	state.ID = types.StringValue(archivePath)

	// 3. Refresh each target's LATEST.
	pubs, diags := publicationsFrom(ctx, state.Publications)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	if r.providerData != nil && len(pubs) > 0 {
		resp.Diagnostics.Append(r.refreshPublications(ctx, &state, pubs)...)
		if resp.Diagnostics.HasError() {
			return
		}
	}

	pubsVal, diags := publicationsValue(ctx, pubs)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}
	state.Publications = pubsVal

	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

// refreshPublications reconciles pubs with what each target serves. A
// target whose LATEST is gone is dropped. A damaged or drifted publication
// keeps the observed LATEST ID but loses its archive hash, which the next
// plan reports as a pending republish.
func (r *ArchiveResource) refreshPublications(ctx context.Context, state *ArchiveResourceModel, pubs map[string]PublicationValue) diag.Diagnostics {
	var diags diag.Diagnostics

	eng := engine.New(r.providerData.Semaphore)
	name := archiveName(state.ArchivePath.ValueString())
	expected := state.ArchiveHash.ValueString()
	deep := state.DeepDriftCheck.ValueBool()

	for tName, pv := range pubs {
		t, ok := r.providerData.Targets[tName]
		if !ok {
			tflog.Warn(ctx, "target no longer configured, removing from state", map[string]interface{}{
				"target": tName,
			})
			delete(pubs, tName)
			continue
		}

		result, err := eng.Refresh(ctx, t, name, expected, deep)
		if err != nil {
			diags.AddError(
				"Refresh Failed",
				fmt.Sprintf("Failed to refresh archive %q from target %q: %s", name, tName, err),
			)
			return diags
		}

		if result.LatestID == "" {
			tflog.Info(ctx, "LATEST not found on target, publication may have been deleted externally", map[string]interface{}{
				"target": tName,
			})
			delete(pubs, tName)
			continue
		}

		pv.PublicationID = types.StringValue(result.LatestID)
		if result.Healthy && !result.Drifted {
			pv.ArchiveHash = types.StringValue(result.Manifest.ArchiveHash)
		} else {
			tflog.Warn(ctx, "publication drifted or damaged on target", map[string]interface{}{
				"target":           tName,
				"latest":           result.LatestID,
				"drifted":          result.Drifted,
				"missing_manifest": result.MissingManifest,
				"missing_archive":  result.MissingArchive,
				"corrupted":        result.Corrupted,
			})
			pv.ArchiveHash = types.StringValue("")
		}
		pubs[tName] = pv
	}

	return diags
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

func (r *ArchiveResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan ArchiveResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	var priorState ArchiveResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &priorState)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 1. Resolve targets.
	resolvedTargets, diags := r.resolveTargets(ctx, plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 2. Package.
	b, diags := build(ctx, r.providerData.IgnoreCache, plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(applyBuilt(ctx, &plan, b)...)
	if resp.Diagnostics.HasError() {
		return
	}

	eng := engine.New(r.providerData.Semaphore)

	priorPubs, diags := publicationsFrom(ctx, priorState.Publications)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 3. Clean up what the new configuration no longer covers: targets
	// dropped from the list, and everything under the old name when the
	// archive was renamed or moved.
	priorPath := priorState.ArchivePath.ValueString()
	priorName := archiveName(priorPath)
	renamed := priorName != b.name()

	stale := make(map[string]PublicationValue)
	for tName, pv := range priorPubs {
		if renamed || !slices.Contains(resolvedTargets, tName) {
			stale[tName] = pv
		}
	}
	if len(stale) > 0 {
		resp.Diagnostics.Append(r.destroyOn(ctx, eng, priorName, stale, plan.ForceDestroy.ValueBool())...)
		if resp.Diagnostics.HasError() {
			return
		}
	}
	if renamed {
		priorPubs = nil
	}

	if priorPath != "" && priorPath != b.result.ArchivePath && !plan.KeepArchiveOnDestroy.ValueBool() {
		if err := removeArchive(priorPath); err != nil {
			resp.Diagnostics.AddWarning("Old Archive Not Removed", fmt.Sprintf("Failed to remove %q: %s", priorPath, err))
		}
	}

	// 4. Publish.
	pubs, published, diags := r.publishAll(ctx, eng, b, plan, resolvedTargets, priorPubs)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	pubsVal, diags := publicationsValue(ctx, pubs)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}
	plan.Publications = pubsVal

	resp.Diagnostics.Append(renderReport(&plan, b, published)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func (r *ArchiveResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state ArchiveResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	pubs, diags := publicationsFrom(ctx, state.Publications)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 1. Destroy publications on each target.
	if len(pubs) > 0 {
		eng := engine.New(r.providerData.Semaphore)
		name := archiveName(state.ArchivePath.ValueString())
		resp.Diagnostics.Append(r.destroyOn(ctx, eng, name, pubs, state.ForceDestroy.ValueBool())...)
		if resp.Diagnostics.HasError() {
			return
		}
	}

	// 2. Remove the local archive.
	if !state.KeepArchiveOnDestroy.ValueBool() {
		if err := removeArchive(state.ArchivePath.ValueString()); err != nil {
			resp.Diagnostics.AddError(
				"Archive Removal Failed",
				fmt.Sprintf("Failed to remove %q: %s", state.ArchivePath.ValueString(), err),
			)
		}
	}
}

// --------------------------------------------------------------------------
// Import
// --------------------------------------------------------------------------

// ImportState adopts an existing archive by its path. The next refresh
// fills in the hashes; publications start empty.
func (r *ArchiveResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), req.ID)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("archive_path"), req.ID)...)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// resolveTargets determines the effective list of target names:
//  1. Explicit resource `targets` attribute
//  2. Provider `default_targets`
//  3. Implicit single target, when exactly one is configured
//  4. No targets at all: the archive is only written locally
//
// Several configured targets with neither 1 nor 2 set is an error.
func (r *ArchiveResource) resolveTargets(ctx context.Context, model ArchiveResourceModel) ([]string, diag.Diagnostics) {
	var diags diag.Diagnostics

	if !model.Targets.IsNull() && !model.Targets.IsUnknown() {
		var explicit []string
		diags.Append(model.Targets.ElementsAs(ctx, &explicit, false)...)
		return explicit, diags
	}

	if r.providerData == nil {
		return nil, diags
	}

	if len(r.providerData.DefaultTargets) > 0 {
		return r.providerData.DefaultTargets, diags
	}

	switch len(r.providerData.Targets) {
	case 0:
		return nil, diags
	case 1:
		for name := range r.providerData.Targets {
			return []string{name}, diags
		}
	}

	diags.AddError(
		"Ambiguous Target Configuration",
		"Multiple targets are configured in the provider but neither `default_targets` on the provider nor `targets` on the resource is set. "+
			"Set `default_targets` on the provider or specify `targets` on the resource (use `targets = []` to only package locally).",
	)
	return nil, diags
}
