// Package dynconf manages the dynamic part of an application configuration:
// a set of named items, each bound to a path inside the configuration tree,
// whose values can be edited at runtime, validated, persisted and merged back
// into the live application.
//
// # Architecture Overview
//
// dynconf consists of five cooperating pieces:
//  1. **Items**: an id, a path such as "components.mailer.sender", validation
//     rules, presentation metadata and a lazily extracted value
//  2. **Extraction and composition**: path-addressed reads from a live object
//     graph and the inverse single-branch tree construction
//  3. **Deep merge**: combining many branches into one tree without clobbering
//     unrelated siblings
//  4. **Storage**: a flat id -> value store with memory, file (YAML/JSON) and
//     SQL (SQLite) backends plus a driver registry
//  5. **Manager**: orchestration of the above with a TTL cache of the composed tree
//
// # Declaring Items
//
// Items are declared in code or in a YAML file:
//
//	dynconf:
//	  items:
//	    appName:
//	      path: name
//	      label: Application name
//	      rules: [required, [string, {max: 64}]]
//	    nullDisplay:
//	      path: components.formatter.nullDisplay
//	      rules: [required]
//	    adminEmail:
//	      rules: [required, email]   # path defaults to params.adminEmail
//
// loaded with:
//
//	mgr, err := dynconf.New(
//	    dynconf.WithItemsSource(dynconf.ItemsFile{Path: "config/items.yaml", Section: "dynconf.items"}),
//	    dynconf.WithSource(app),
//	    dynconf.WithStorage(storage),
//	)
//
// # Extraction
//
// Item values are read from the source graph one path segment at a time.
// String-keyed maps, slices, structs (by `dynconf` tag or field name),
// PropertyGetter and Indexer implementations are all traversable. The
// "components" segment of a ComponentLocator is special: the next segment
// names a component that is realized on demand, so
// "components.formatter.nullDisplay" works even before the formatter was
// ever used.
//
// # Editing and Persisting Values
//
//	if err := mgr.SetItemValues(submitted); err != nil {
//	    return err // unknown item id
//	}
//	if !mgr.Validate() {
//	    return render(mgr.ValidationErrors())
//	}
//	if err := mgr.SaveValues(ctx); err != nil {
//	    return err
//	}
//
// SaveValues, ClearValues and ClearValue drop the cached composed tree.
//
// # Applying Configuration
//
// At startup the stored values are composed and applied to the application:
//
//	if err := mgr.Configure(ctx, app, nil); err != nil {
//	    logger.Warn("dynamic configuration not applied", zap.Error(err))
//	}
//
// Module targets merge "components" and "params" and recurse into "modules";
// other keys are assigned as properties. The dynconffx package wires the same
// bootstrap into an fx application.
//
// # Storage Drivers
//
//	storage, err := dynconf.OpenStorage(ctx, "sqlite", dynconf.StorageConfig{
//	    DSN:    "data/config.db",
//	    Filter: dynconf.StaticFilter(map[string]interface{}{"app": "api"}),
//	})
//
// Filters scope table-like storages so several applications can share one table.
//
// # Audit and Hot Reload
//
// An AuditLogger records every storage write with the values before and
// after, in a JSONL file or an SQLite table:
//
//	audit, _ := dynconf.NewAuditLogger(dynconf.DefaultAuditConfig("audit.jsonl"))
//	mgr, _ := dynconf.New(..., dynconf.WithAuditLogger(audit))
//
// A Watcher polls file-backed storages; WatchStorage drops the cached tree
// when the file is edited by another process.
//
// # Settings
//
// LoadSettings reads flags and APPNAME_* environment variables with
// flash-flags, and NewFromSettings turns them into a Manager.
//
// # Error Handling
//
// Errors carry DYNCONF_* codes from github.com/agilira/go-errors; use
// ErrorCode or HasCode to branch on them. Validation failures are not errors:
// they are collected per item and reported through Validate.
//
// # Thread Safety
//
// Manager, Item and Container are not safe for concurrent use. MemoryCache,
// the storages, the registries, AuditLogger and Watcher are.
package dynconf
