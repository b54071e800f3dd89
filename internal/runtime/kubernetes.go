package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesConfig configures KubernetesBackend.
type KubernetesConfig struct {
	Namespace          string
	ServiceAccount     string
	DefaultCPULimit    string
	DefaultMemoryLimit string
}

// KubernetesBackend runs tasks as one-shot Kubernetes Jobs.
type KubernetesBackend struct {
	clientset kubernetes.Interface
	config    KubernetesConfig
	logger    *slog.Logger
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE")
}

// NewKubernetesBackend tries in-cluster config first, falling back to
// the local kubeconfig.
func NewKubernetesBackend(cfg KubernetesConfig) (*KubernetesBackend, error) {
	logger := slog.Default().With("component", "runtime", "backend", "kubernetes")
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(homeDir(), ".kube", "config")
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("runtime: build kubernetes config: %w", err)
		}
		logger.Info("using kubeconfig", "path", kubeconfig)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("runtime: create kubernetes clientset: %w", err)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.DefaultCPULimit == "" {
		cfg.DefaultCPULimit = "500m"
	}
	if cfg.DefaultMemoryLimit == "" {
		cfg.DefaultMemoryLimit = "256Mi"
	}

	return &KubernetesBackend{clientset: clientset, config: cfg, logger: logger}, nil
}

// Execute creates a Job for opts, waits for its single pod to terminate,
// and deletes the Job before returning.
func (k *KubernetesBackend) Execute(ctx context.Context, opts ExecOptions) (ExitResult, error) {
	jobName := fmt.Sprintf("flowdag-%d", time.Now().UnixNano())

	var envVars []corev1.EnvVar
	for key, value := range opts.Env {
		envVars = append(envVars, corev1.EnvVar{Name: key, Value: value})
	}

	resources := corev1.ResourceRequirements{
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(k.config.DefaultCPULimit),
			corev1.ResourceMemory: resource.MustParse(k.config.DefaultMemoryLimit),
		},
	}

	backoffLimit := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: k.config.Namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "flowdag"},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"job-name":                     jobName,
						"app.kubernetes.io/managed-by": "flowdag",
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:      "task",
							Image:     opts.Image,
							Command:   opts.Command,
							Env:       envVars,
							Resources: resources,
						},
					},
				},
			},
		},
	}
	if k.config.ServiceAccount != "" {
		job.Spec.Template.Spec.ServiceAccountName = k.config.ServiceAccount
	}

	createdJob, err := k.clientset.BatchV1().Jobs(k.config.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return ExitResult{ExitCode: -1}, fmt.Errorf("runtime: create kubernetes job: %w", err)
	}
	defer k.deleteJob(context.Background(), createdJob.Name)

	return k.waitForPod(ctx, createdJob.Name)
}

func (k *KubernetesBackend) waitForPod(ctx context.Context, jobName string) (ExitResult, error) {
	podName, err := k.findPod(ctx, jobName)
	if err != nil {
		return ExitResult{ExitCode: -1, Error: err}, err
	}

	watcher, err := k.clientset.CoreV1().Pods(k.config.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("metadata.name=%s", podName),
	})
	if err != nil {
		return ExitResult{ExitCode: -1, Error: err}, err
	}
	defer watcher.Stop()

	for event := range watcher.ResultChan() {
		if event.Type == watch.Error {
			err := fmt.Errorf("runtime: kubernetes watch error")
			return ExitResult{ExitCode: -1, Error: err}, err
		}
		pod, ok := event.Object.(*corev1.Pod)
		if !ok {
			continue
		}
		switch pod.Status.Phase {
		case corev1.PodSucceeded:
			return ExitResult{ExitCode: 0}, nil
		case corev1.PodFailed:
			return k.failureResult(pod), nil
		}
	}
	return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
}

func (k *KubernetesBackend) failureResult(pod *corev1.Pod) ExitResult {
	exitCode := -1
	var errMsg error
	if len(pod.Status.ContainerStatuses) > 0 {
		cs := pod.Status.ContainerStatuses[0]
		if cs.State.Terminated != nil {
			exitCode = int(cs.State.Terminated.ExitCode)
			if cs.State.Terminated.Reason != "" {
				errMsg = fmt.Errorf("%s", cs.State.Terminated.Reason)
			}
		}
	}
	return ExitResult{ExitCode: exitCode, Error: errMsg}
}

func (k *KubernetesBackend) findPod(ctx context.Context, jobName string) (string, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			pods, err := k.clientset.CoreV1().Pods(k.config.Namespace).List(ctx, metav1.ListOptions{
				LabelSelector: fmt.Sprintf("job-name=%s", jobName),
			})
			if err != nil {
				return "", err
			}
			if len(pods.Items) > 0 {
				return pods.Items[0].Name, nil
			}
		}
	}
}

func (k *KubernetesBackend) deleteJob(ctx context.Context, jobName string) {
	propagation := metav1.DeletePropagationForeground
	err := k.clientset.BatchV1().Jobs(k.config.Namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		k.logger.Error("delete kubernetes job failed", "job", jobName, "error", err)
	}
}
