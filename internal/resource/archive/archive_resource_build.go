package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/engine"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/hook"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/ignore"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/packager"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/report"
	"github.com/zipbundle/terraform-provider-zipbundle/internal/target"
)

// built is the local outcome of packaging, before anything is published.
type built struct {
	result     *packager.Result
	entries    map[string]string
	sourceHash string
	hash       string
	size       int64
}

// name returns the archive base name, which is also its key prefix on
// targets.
func (b *built) name() string {
	return archiveName(b.result.ArchivePath)
}

func archiveName(archivePath string) string {
	return strings.TrimSuffix(filepath.Base(archivePath), packager.ArchiveExtension)
}

// packagerOptions maps the model onto packager.Options.
func packagerOptions(m ArchiveResourceModel) packager.Options {
	return packager.Options{
		SourceFolder:           m.SourceDir.ValueString(),
		IgnoreFile:             m.IgnoreFile.ValueString(),
		OutputName:             m.OutputName.ValueString(),
		OutputDirectory:        m.OutputDir.ValueString(),
		ExcludeSecrets:         m.ExcludeSecrets.ValueBool(),
		RejectExternalSymlinks: m.RejectExternalSymlinks.ValueBool(),
	}
}

// newPackager builds a Packager with the configured before/after commands
// attached. Hooks run in the source directory.
func newPackager(ctx context.Context, cache *ignore.Cache, m ArchiveResourceModel) (*packager.Packager, diag.Diagnostics) {
	var diags diag.Diagnostics

	env := map[string]string{}
	if !m.HookEnv.IsNull() && !m.HookEnv.IsUnknown() {
		diags.Append(m.HookEnv.ElementsAs(ctx, &env, false)...)
		if diags.HasError() {
			return nil, diags
		}
	}

	dir, err := filepath.Abs(m.SourceDir.ValueString())
	if err != nil {
		diags.AddError("Invalid Source Directory", err.Error())
		return nil, diags
	}

	p := packager.New(cache)
	for _, h := range []struct {
		attr   string
		script types.String
		set    func(packager.Hook) *packager.Packager
	}{
		{"before_command", m.BeforeCommand, p.OnBefore},
		{"after_command", m.AfterCommand, p.OnAfter},
	} {
		if h.script.IsNull() || h.script.IsUnknown() || h.script.ValueString() == "" {
			continue
		}
		fn, err := hook.Command(h.script.ValueString(), env, dir)
		if err != nil {
			diags.AddError(
				"Invalid Hook Command",
				fmt.Sprintf("The %s script could not be parsed: %s", h.attr, err),
			)
			return nil, diags
		}
		h.set(fn)
	}

	return p, diags
}

// build runs the packager and hashes the resulting archive. A failed run
// becomes a "Packaging Failed" error; hook failures become warnings.
func build(ctx context.Context, cache *ignore.Cache, m ArchiveResourceModel) (*built, diag.Diagnostics) {
	p, diags := newPackager(ctx, cache, m)
	if diags.HasError() {
		return nil, diags
	}

	r := p.Run(ctx, packagerOptions(m))

	for _, herr := range r.HookErrors {
		diags.AddWarning("Hook Command Failed", herr.Error())
	}
	if r.Status != packager.StatusSucceeded {
		detail := r.Message()
		for _, ee := range r.EntryErrors {
			detail += "\n  " + ee.Error()
		}
		diags.AddError(
			"Packaging Failed",
			fmt.Sprintf("Failed to package %q: %s", m.SourceDir.ValueString(), detail),
		)
		return nil, diags
	}

	entries, err := packager.EntryHashes(r.ArchivePath)
	if err != nil {
		diags.AddError("Archive Hash Failed", err.Error())
		return nil, diags
	}
	hash, err := bundle.ComputeFileHash(r.ArchivePath)
	if err != nil {
		diags.AddError("Archive Hash Failed", err.Error())
		return nil, diags
	}
	info, err := os.Stat(r.ArchivePath)
	if err != nil {
		diags.AddError("Archive Hash Failed", err.Error())
		return nil, diags
	}

	return &built{
		result:     r,
		entries:    entries,
		sourceHash: bundle.ComputeSourceHash(entries),
		hash:       hash,
		size:       info.Size(),
	}, diags
}

// applyBuilt copies the local outcome into the model.
func applyBuilt(ctx context.Context, m *ArchiveResourceModel, b *built) diag.Diagnostics {
	var diags diag.Diagnostics

	m.ID = types.StringValue(b.result.ArchivePath)
	m.ArchivePath = types.StringValue(b.result.ArchivePath)
	m.ArchiveHash = types.StringValue(b.hash)
	m.ArchiveSize = types.Int64Value(b.size)
	m.TotalFiles = types.Int64Value(int64(b.result.FilesWritten))
	m.SourceHash = types.StringValue(b.sourceHash)

	included, d := types.ListValueFrom(ctx, types.StringType, nonNil(b.result.Included()))
	diags.Append(d...)
	excluded, d := types.ListValueFrom(ctx, types.StringType, nonNil(b.result.Excluded()))
	diags.Append(d...)
	m.IncludedFiles = included
	m.ExcludedFiles = excluded

	return diags
}

// renderReport sets m.Report from the run and the publications made.
func renderReport(m *ArchiveResourceModel, b *built, published []*engine.PublishResult) diag.Diagnostics {
	var diags diag.Diagnostics

	rep := report.FromResult(b.result)
	for _, p := range published {
		rep.Publications = append(rep.Publications, report.Publication{
			Target:        p.TargetName,
			PublicationID: p.PublicationID,
			ArchiveHash:   p.ArchiveHash,
		})
	}

	format := report.FormatText
	if !m.ReportFormat.IsNull() && !m.ReportFormat.IsUnknown() {
		format = m.ReportFormat.ValueString()
	}
	out, err := report.Render(rep, format)
	if err != nil {
		diags.AddError("Report Rendering Failed", err.Error())
		return diags
	}
	m.Report = types.StringValue(out)
	return diags
}

// publishAll publishes b to every named target and returns the new
// publications map entries. prior supplies each target's previous
// publication and managed IDs.
func (r *ArchiveResource) publishAll(ctx context.Context, eng *engine.Engine, b *built, m ArchiveResourceModel, targetNames []string, prior map[string]PublicationValue) (map[string]PublicationValue, []*engine.PublishResult, diag.Diagnostics) {
	var diags diag.Diagnostics

	targets := make([]target.Target, 0, len(targetNames))
	previous := make(map[string]string, len(targetNames))
	for _, tName := range targetNames {
		t, ok := r.providerData.Targets[tName]
		if !ok {
			diags.AddError(
				"Target Not Found",
				fmt.Sprintf("Target %q referenced by the resource is not defined in the provider.", tName),
			)
			return nil, nil, diags
		}
		targets = append(targets, t)
		if pv, ok := prior[tName]; ok {
			previous[tName] = pv.PublicationID.ValueString()
		}
	}

	if len(targets) == 0 {
		return map[string]PublicationValue{}, nil, diags
	}

	results, err := eng.PublishAll(ctx, targets, engine.PublishInput{
		Name:            b.name(),
		ArchivePath:     b.result.ArchivePath,
		ArchiveHash:     b.hash,
		Entries:         b.entries,
		SourceFolder:    b.result.SourceFolder,
		SourceHash:      b.sourceHash,
		ProviderVersion: r.providerData.Version,
	}, previous)
	if err != nil {
		if errors.Is(err, target.ErrPreconditionFailed) {
			diags.AddError(
				"Concurrent Modification",
				fmt.Sprintf("The LATEST pointer for %q changed while publishing; another writer may be publishing the same archive. %s", b.name(), err),
			)
		} else {
			diags.AddError(
				"Publication Failed",
				fmt.Sprintf("Failed to publish archive %q: %s", b.name(), err),
			)
		}
		return nil, nil, diags
	}

	out := make(map[string]PublicationValue, len(results))
	for _, res := range results {
		var managed []string
		if pv, ok := prior[res.TargetName]; ok && !pv.ManagedPublicationIDs.IsNull() {
			diags.Append(pv.ManagedPublicationIDs.ElementsAs(ctx, &managed, false)...)
			if diags.HasError() {
				return nil, nil, diags
			}
		}
		if !slices.Contains(managed, res.PublicationID) {
			managed = append(managed, res.PublicationID)
		}

		// Prune old publications if retention is configured.
		if retain := m.RetainPublications.ValueInt64(); retain > 0 {
			pruned, err := eng.Prune(ctx, r.providerData.Targets[res.TargetName], b.name(), res.PublicationID, managed, int(retain))
			if err != nil {
				tflog.Warn(ctx, "prune failed", map[string]interface{}{
					"target": res.TargetName,
					"error":  err.Error(),
				})
			}
			managed = slices.DeleteFunc(managed, func(id string) bool { return slices.Contains(pruned, id) })
		}

		managedList, d := types.ListValueFrom(ctx, types.StringType, managed)
		diags.Append(d...)
		if diags.HasError() {
			return nil, nil, diags
		}
		out[res.TargetName] = PublicationValue{
			PublicationID:         types.StringValue(res.PublicationID),
			ArchiveHash:           types.StringValue(res.ArchiveHash),
			ManagedPublicationIDs: managedList,
		}
	}

	return out, results, diags
}

// destroyOn removes name's publications from each listed target.
func (r *ArchiveResource) destroyOn(ctx context.Context, eng *engine.Engine, name string, pubs map[string]PublicationValue, force bool) diag.Diagnostics {
	var diags diag.Diagnostics

	for tName, pv := range pubs {
		t, ok := r.providerData.Targets[tName]
		if !ok {
			tflog.Warn(ctx, "target no longer configured, skipping destroy", map[string]interface{}{
				"target": tName,
			})
			continue
		}

		var managed []string
		if !pv.ManagedPublicationIDs.IsNull() && !pv.ManagedPublicationIDs.IsUnknown() {
			diags.Append(pv.ManagedPublicationIDs.ElementsAs(ctx, &managed, false)...)
			if diags.HasError() {
				return diags
			}
		}

		tflog.Info(ctx, "destroying archive publications on target", map[string]interface{}{
			"name":   name,
			"target": tName,
		})

		if err := eng.Destroy(ctx, t, name, engine.DestroyOptions{
			Force:      force,
			ManagedIDs: managed,
		}); err != nil {
			diags.AddError(
				"Destroy Failed",
				fmt.Sprintf("Failed to destroy archive %q on target %q: %s", name, tName, err),
			)
			return diags
		}
	}

	return diags
}

// publicationsFrom decodes the publications map. Null and unknown decode to
// an empty map.
func publicationsFrom(ctx context.Context, v types.Map) (map[string]PublicationValue, diag.Diagnostics) {
	out := map[string]PublicationValue{}
	if v.IsNull() || v.IsUnknown() {
		return out, nil
	}
	diags := v.ElementsAs(ctx, &out, false)
	return out, diags
}

func publicationsValue(ctx context.Context, pubs map[string]PublicationValue) (types.Map, diag.Diagnostics) {
	return types.MapValueFrom(ctx, publicationsType(), pubs)
}

// removeArchive deletes a local archive. A missing file is not an error.
func removeArchive(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
