package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/hook"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/packager"
)

// ModifyPlan implements resource.ResourceWithModifyPlan. It performs
// validation and plan-time change detection before Terraform applies
// changes.
func (r *ArchiveResource) ModifyPlan(ctx context.Context, req resource.ModifyPlanRequest, resp *resource.ModifyPlanResponse) {
	// If the entire resource is being destroyed there is nothing to validate.
	if req.Plan.Raw.IsNull() {
		return
	}

	var plan ArchiveResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// ---------------------------------------------------------------
	// 1. Validate target references exist in the provider config.
	// ---------------------------------------------------------------
	if r.providerData != nil && !plan.Targets.IsNull() && !plan.Targets.IsUnknown() {
		var targetNames []string
		resp.Diagnostics.Append(plan.Targets.ElementsAs(ctx, &targetNames, false)...)
		if resp.Diagnostics.HasError() {
			return
		}

		for _, tName := range targetNames {
			if _, exists := r.providerData.Targets[tName]; !exists {
				resp.Diagnostics.AddError(
					"Invalid Target Reference",
					fmt.Sprintf(
						"Target %q is referenced in the resource targets list but is not defined in the provider configuration.",
						tName,
					),
				)
			}
		}

		if resp.Diagnostics.HasError() {
			return
		}
	}

	// ---------------------------------------------------------------
	// 2. Validate hook scripts parse.
	// ---------------------------------------------------------------
	for attr, script := range map[string]types.String{
		"before_command": plan.BeforeCommand,
		"after_command":  plan.AfterCommand,
	} {
		if script.IsNull() || script.IsUnknown() {
			continue
		}
		if err := hook.Validate(script.ValueString()); err != nil {
			resp.Diagnostics.AddError(
				"Invalid Hook Command",
				fmt.Sprintf("The %s script could not be parsed: %s", attr, err),
			)
		}
	}
	if resp.Diagnostics.HasError() {
		return
	}

	// Nothing more to compare on create.
	if req.State.Raw.IsNull() {
		return
	}

	var state ArchiveResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// ---------------------------------------------------------------
	// 3. Compute the plan-time source_hash if source_dir is known.
	// ---------------------------------------------------------------
	contentChanged := false
	if !plan.SourceDir.IsNull() && !plan.SourceDir.IsUnknown() {
		sourceDir := plan.SourceDir.ValueString()

		// Only hash if the directory exists during the plan phase. It may
		// not exist in CI plan-only runs or before a before_command
		// creates it.
		absDir, absErr := filepath.Abs(sourceDir)
		if absErr == nil {
			if info, statErr := os.Stat(absDir); statErr == nil && info.IsDir() {
				newHash, err := planSourceHash(ctx, r.ignoreCache(), plan)
				if err != nil {
					tflog.Warn(ctx, "plan-time selection failed, hash will be computed at apply", map[string]interface{}{
						"source_dir": sourceDir,
						"error":      err.Error(),
					})
				} else if newHash != state.SourceHash.ValueString() {
					contentChanged = true
				}
			}
		}
	}

	// ---------------------------------------------------------------
	// 4. Detect publications that need to be (re)made.
	// ---------------------------------------------------------------
	publicationsStale := false
	if r.providerData != nil {
		resolved, diags := r.resolveTargets(ctx, plan)
		resp.Diagnostics.Append(diags...)
		if resp.Diagnostics.HasError() {
			return
		}
		pubs, diags := publicationsFrom(ctx, state.Publications)
		resp.Diagnostics.Append(diags...)
		if resp.Diagnostics.HasError() {
			return
		}
		publicationsStale = needsPublish(resolved, pubs, state.ArchiveHash.ValueString())
	}

	if !contentChanged && !publicationsStale {
		return
	}

	tflog.Debug(ctx, "archive will be rebuilt", map[string]interface{}{
		"content_changed":    contentChanged,
		"publications_stale": publicationsStale,
	})

	// Mark computed attributes unknown so Terraform knows they will change
	// during apply.
	plan.ArchiveHash = types.StringUnknown()
	plan.ArchiveSize = types.Int64Unknown()
	plan.TotalFiles = types.Int64Unknown()
	plan.IncludedFiles = types.ListUnknown(types.StringType)
	plan.ExcludedFiles = types.ListUnknown(types.StringType)
	plan.SourceHash = types.StringUnknown()
	plan.Report = types.StringUnknown()
	plan.Publications = types.MapUnknown(publicationsType())

	resp.Diagnostics.Append(resp.Plan.Set(ctx, &plan)...)
}

func (r *ArchiveResource) ignoreCache() *ignore.Cache {
	if r.providerData == nil {
		return nil
	}
	return r.providerData.IgnoreCache
}

// planSourceHash runs the selection steps without writing an archive and
// hashes the files a run would include.
func planSourceHash(ctx context.Context, cache *ignore.Cache, plan ArchiveResourceModel) (string, error) {
	sel, err := packager.Select(ctx, cache, packagerOptions(plan))
	if err != nil {
		return "", err
	}
	return sel.SourceHash()
}

// needsPublish reports whether any resolved target lacks a healthy
// publication of the archive with hash archiveHash.
func needsPublish(resolved []string, pubs map[string]PublicationValue, archiveHash string) bool {
	for _, tName := range resolved {
		pv, ok := pubs[tName]
		if !ok || pv.ArchiveHash.ValueString() != archiveHash {
			return true
		}
	}
	for tName := range pubs {
		if !slices.Contains(resolved, tName) {
			return true
		}
	}
	return false
}
