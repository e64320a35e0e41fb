package model

import "github.com/oleksiyp/kubecd/pkg/schema"

var (
	gceAddressSchema = &schema.Struct{
		Name: "GceAddressValueRef",
		Fields: []schema.Field{
			{Name: "name", Type: schema.StringType},
			{Name: "isGlobal", Type: schema.BoolType},
		},
	}

	gceResourceSchema = &schema.Struct{
		Name: "GceResourceValueRef",
		Fields: []schema.Field{
			{Name: "address", Type: schema.StructOf(gceAddressSchema)},
		},
	}

	valueFromSchema = &schema.Struct{
		Name: "ChartValueRef",
		Fields: []schema.Field{
			{Name: "gceResource", Type: schema.StructOf(gceResourceSchema)},
		},
	}

	chartValueSchema = &schema.Struct{
		Name: "ChartValue",
		Fields: []schema.Field{
			{Name: "key", Type: schema.StringType},
			{Name: "value", Type: schema.StringType},
			{Name: "valueFrom", Type: schema.StructOf(valueFromSchema)},
		},
	}

	chartSchema = &schema.Struct{
		Name: "Chart",
		Fields: []schema.Field{
			{Name: "reference", Type: schema.StringType},
			{Name: "version", Type: schema.StringType},
			{Name: "dir", Type: schema.StringType},
		},
	}

	imageTriggerSchema = &schema.Struct{
		Name: "ImageTrigger",
		Fields: []schema.Field{
			{Name: "tagValue", Type: schema.StringType},
			{Name: "repoValue", Type: schema.StringType},
			{Name: "repoPrefixValue", Type: schema.StringType},
			{Name: "track", Type: schema.StringType},
		},
	}

	chartTriggerSchema = &schema.Struct{
		Name: "HelmTrigger",
		Fields: []schema.Field{
			{Name: "track", Type: schema.StringType},
		},
	}

	triggerSchema = &schema.Struct{
		Name: "ReleaseUpdateTrigger",
		Fields: []schema.Field{
			{Name: "image", Type: schema.StructOf(imageTriggerSchema)},
			{Name: "chart", Type: schema.StructOf(chartTriggerSchema)},
		},
	}

	releaseSchema = &schema.Struct{
		Name: "Release",
		Fields: []schema.Field{
			{Name: "name", Type: schema.StringType},
			{Name: "chart", Type: schema.StructOf(chartSchema)},
			{Name: "valuesFile", Type: schema.StringType},
			{Name: "values", Type: schema.ListOf(schema.StructOf(chartValueSchema))},
			{Name: "skipDefaultValues", Type: schema.BoolType},
			{Name: "resourceFiles", Type: schema.ListOf(schema.StringType)},
			{Name: "trigger", Type: schema.StructOf(triggerSchema)},
			{Name: "triggers", Type: schema.ListOf(schema.StructOf(triggerSchema))},
		},
	}

	releasesSchema = &schema.Struct{
		Name: "Releases",
		Fields: []schema.Field{
			{Name: "releases", Type: schema.ListOf(schema.StructOf(releaseSchema))},
			{Name: "resourceFiles", Type: schema.ListOf(schema.StringType)},
		},
	}

	gkeSchema = &schema.Struct{
		Name: "GkeProvider",
		Fields: []schema.Field{
			{Name: "project", Type: schema.StringType},
			{Name: "clusterName", Type: schema.StringType},
			{Name: "zone", Type: schema.StringType},
			{Name: "region", Type: schema.StringType},
		},
	}

	aksSchema = &schema.Struct{
		Name: "AksProvider",
		Fields: []schema.Field{
			{Name: "resourceGroup", Type: schema.StringType},
			{Name: "clusterName", Type: schema.StringType},
		},
	}

	existingContextSchema = &schema.Struct{
		Name: "ExistingContextProvider",
		Fields: []schema.Field{
			{Name: "contextName", Type: schema.StringType},
		},
	}

	providerSchema = &schema.Struct{
		Name: "ClusterProvider",
		Fields: []schema.Field{
			{Name: "gke", Type: schema.StructOf(gkeSchema)},
			{Name: "aks", Type: schema.StructOf(aksSchema)},
			{Name: "minikube", Type: schema.StructOf(&schema.Struct{Name: "MinikubeProvider"})},
			{Name: "dockerForDesktop", Type: schema.StructOf(&schema.Struct{Name: "DockerForDesktopProvider"})},
			{Name: "existingContext", Type: schema.StructOf(existingContextSchema)},
			{Name: "gitlab", Type: schema.StructOf(&schema.Struct{Name: "GitlabProvider"})},
		},
	}

	clusterParameterSchema = &schema.Struct{
		Name: "ClusterParameter",
		Fields: []schema.Field{
			{Name: "name", Type: schema.StringType},
			{Name: "value", Type: schema.StringType},
		},
	}

	clusterSchema = &schema.Struct{
		Name: "Cluster",
		Fields: []schema.Field{
			{Name: "name", Type: schema.StringType},
			{Name: "provider", Type: schema.StructOf(providerSchema)},
			{Name: "parameters", Type: schema.ListOf(schema.StructOf(clusterParameterSchema))},
		},
	}

	environmentSchema = &schema.Struct{
		Name: "Environment",
		Fields: []schema.Field{
			{Name: "name", Type: schema.StringType},
			{Name: "clusterName", Type: schema.StringType},
			{Name: "kubeNamespace", Type: schema.StringType},
			{Name: "releasesFiles", Type: schema.ListOf(schema.StringType)},
			{Name: "defaultValuesFile", Type: schema.StringType},
			{Name: "defaultValues", Type: schema.ListOf(schema.StructOf(chartValueSchema))},
		},
	}

	helmRepoSchema = &schema.Struct{
		Name: "HelmRepo",
		Fields: []schema.Field{
			{Name: "name", Type: schema.StringType},
			{Name: "url", Type: schema.StringType},
			{Name: "caFile", Type: schema.StringType},
			{Name: "certFile", Type: schema.StringType},
			{Name: "keyFile", Type: schema.StringType},
		},
	}

	rootSchema = &schema.Struct{
		Name: "Environments",
		Fields: []schema.Field{
			{Name: "clusters", Type: schema.ListOf(schema.StructOf(clusterSchema))},
			{Name: "environments", Type: schema.ListOf(schema.StructOf(environmentSchema))},
			{Name: "helmRepos", Type: schema.ListOf(schema.StructOf(helmRepoSchema))},
			{Name: "kubeConfig", Type: schema.StringType},
		},
	}
)
