package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/vpcsim/cmd"
)

const defaultConfigFile = "/etc/vpcsim/vpcsim.hcl"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-vpc":
		fs := flag.NewFlagSet("create-vpc", flag.ExitOnError)
		configFile := configFlag(fs)
		name := fs.String("name", "", "VPC name")
		cidr := fs.String("cidr", "", "VPC CIDR block, e.g. 10.0.0.0/16")
		fs.Parse(os.Args[2:])
		requireFlags(fs, map[string]string{"name": *name, "cidr": *cidr})
		fail(cmd.RunCreateVPC(*configFile, *name, *cidr))

	case "delete-vpc":
		fs := flag.NewFlagSet("delete-vpc", flag.ExitOnError)
		configFile := configFlag(fs)
		name := fs.String("name", "", "VPC name")
		fs.Parse(os.Args[2:])
		requireFlags(fs, map[string]string{"name": *name})
		fail(cmd.RunDeleteVPC(*configFile, *name))

	case "add-subnet":
		fs := flag.NewFlagSet("add-subnet", flag.ExitOnError)
		configFile := configFlag(fs)
		vpc := fs.String("vpc", "", "Parent VPC name")
		name := fs.String("name", "", "Subnet name")
		cidr := fs.String("cidr", "", "Subnet CIDR, contained in the VPC CIDR")
		kind := fs.String("kind", "private", "Subnet kind: public or private")
		fs.Parse(os.Args[2:])
		requireFlags(fs, map[string]string{"vpc": *vpc, "name": *name, "cidr": *cidr})
		fail(cmd.RunAddSubnet(*configFile, *vpc, *name, *cidr, *kind))

	case "peer-vpcs":
		fs := flag.NewFlagSet("peer-vpcs", flag.ExitOnError)
		configFile := configFlag(fs)
		a := fs.String("a", "", "First VPC name")
		b := fs.String("b", "", "Second VPC name")
		fs.Parse(os.Args[2:])
		requireFlags(fs, map[string]string{"a": *a, "b": *b})
		fail(cmd.RunPeerVPCs(*configFile, *a, *b))

	case "unpeer-vpcs":
		fs := flag.NewFlagSet("unpeer-vpcs", flag.ExitOnError)
		configFile := configFlag(fs)
		a := fs.String("a", "", "First VPC name")
		b := fs.String("b", "", "Second VPC name")
		fs.Parse(os.Args[2:])
		requireFlags(fs, map[string]string{"a": *a, "b": *b})
		fail(cmd.RunUnpeerVPCs(*configFile, *a, *b))

	case "apply-policy":
		fs := flag.NewFlagSet("apply-policy", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "Usage: vpcsim apply-policy [options] <policy.json>")
			os.Exit(1)
		}
		fail(cmd.RunApplyPolicy(*configFile, fs.Arg(0)))

	case "revoke-policy":
		fs := flag.NewFlagSet("revoke-policy", flag.ExitOnError)
		configFile := configFlag(fs)
		subnet := fs.String("subnet", "", "Subnet name or vpc/subnet")
		fs.Parse(os.Args[2:])
		requireFlags(fs, map[string]string{"subnet": *subnet})
		fail(cmd.RunRevokePolicy(*configFile, *subnet))

	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "Usage: vpcsim import [options] <topology.yaml>")
			os.Exit(1)
		}
		fail(cmd.RunImport(*configFile, fs.Arg(0)))

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		fail(cmd.RunStatus(*configFile))

	case "diff":
		fs := flag.NewFlagSet("diff", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		fail(cmd.RunDiff(*configFile))

	case "verify":
		fs := flag.NewFlagSet("verify", flag.ExitOnError)
		configFile := configFlag(fs)
		vpc := fs.String("vpc", "", "Limit probes to one VPC")
		subnet := fs.String("subnet", "", "Probe a single subnet (name or vpc/subnet)")
		host := fs.String("host", "", "TCP probe target address (requires -subnet)")
		port := fs.Uint("port", 0, "TCP probe target port (requires -host)")
		fs.Parse(os.Args[2:])
		if *host != "" && (*subnet == "" || *port == 0 || *port > 65535) {
			fmt.Fprintln(os.Stderr, "TCP probe needs -subnet, -host and a valid -port")
			os.Exit(1)
		}
		fail(cmd.RunVerify(*configFile, *vpc, *subnet, *host, *port))

	case "cleanup":
		fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
		configFile := configFlag(fs)
		fs.Parse(os.Args[2:])
		fail(cmd.RunCleanup(*configFile))

	case "config-init":
		fs := flag.NewFlagSet("config-init", flag.ExitOnError)
		path := fs.String("path", defaultConfigFile, "Where to write the config file")
		fs.Parse(os.Args[2:])
		fail(cmd.RunConfigInit(*path))

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// configFlag registers the shared -config flag on a command's flag set.
func configFlag(fs *flag.FlagSet) *string {
	configFile := fs.String("config", defaultConfigFile, "Configuration file")
	fs.StringVar(configFile, "c", defaultConfigFile, "Configuration file (short)")
	return configFile
}

// requireFlags exits with usage when a required flag was left empty.
func requireFlags(fs *flag.FlagSet, values map[string]string) {
	for name, v := range values {
		if v == "" {
			fmt.Fprintf(os.Stderr, "Missing required flag: -%s\n\n", name)
			fs.Usage()
			os.Exit(1)
		}
	}
}

func fail(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`vpcsim - single-host VPC network simulator

Usage:
  vpcsim <command> [options]

Topology Commands:
  create-vpc     Create a VPC (Linux bridge)
                 Flags: -name, -cidr
  add-subnet     Add a subnet to a VPC (namespace + veth pair)
                 Flags: -vpc, -name, -cidr, -kind public|private
  peer-vpcs      Connect two VPCs with a veth link
                 Flags: -a, -b
  unpeer-vpcs    Remove the link between two peered VPCs
                 Flags: -a, -b
  delete-vpc     Tear down one VPC, its subnets and peerings
                 Flags: -name
  import         Provision a whole topology from a YAML manifest

Policy Commands:
  apply-policy   Apply a JSON policy document to its subnet
  revoke-policy  Remove all rules from a subnet
                 Flags: -subnet

Inspection Commands:
  status         Show the declared topology
  diff           Compare declared topology against kernel state
  verify         Ping every subnet gateway from inside its namespace
                 Flags: -vpc (limit to one VPC),
                        -subnet [-host -port] (single subnet / TCP probe)

Maintenance Commands:
  cleanup        Remove every managed kernel object
  config-init    Write a commented default configuration file
                 Flags: -path

All commands accept -config (-c) <file>; missing files fall back to
built-in defaults.

Examples:
  vpcsim create-vpc -name prod -cidr 10.0.0.0/16
  vpcsim add-subnet -vpc prod -name web -cidr 10.0.1.0/24 -kind public
  vpcsim peer-vpcs -a prod -b dev
  vpcsim apply-policy web-policy.json
  vpcsim verify
  vpcsim cleanup
`)
}
