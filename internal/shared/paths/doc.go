// Package paths provides the on-disk layout of the data root.
//
// # Directory Structure
//
//	<root>/
//	  ├── app/<pkg>/            (base.apk, split_<name>.apk)
//	  └── data/
//	      ├── user/<uid>/<pkg>     (credential protected)
//	      └── user_de/<uid>/<pkg>  (device protected)
//
// # Usage
//
//	root := paths.Root("/var/lib/pkgmgr")
//	code := root.Code("com.example.app")       // /var/lib/pkgmgr/app/com.example.app
//	data := root.Data("com.example.app", 10)   // /var/lib/pkgmgr/data/user/10/com.example.app
//	name := paths.SplitFile("config.hdpi")     // split_config.hdpi.apk
package paths
